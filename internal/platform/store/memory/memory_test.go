package memory_test

import (
	"testing"

	"github.com/MahdiBaghbani/ocmbridge/internal/platform/store"
	_ "github.com/MahdiBaghbani/ocmbridge/internal/platform/store/memory"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/store/testutil"
)

func TestMemoryDriver(t *testing.T) {
	testutil.RunDriverTests(t, "memory", &store.DriverConfig{Driver: "memory"})
}
