package utils

import (
	"context"
	"testing"
)

func TestVendorSlotScriptsCompile(t *testing.T) {
	// Compile-time smoke test: scripts should be initialized.
	if vendorSlotAcquireScript == nil || vendorSlotReleaseScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}

func TestAcquireVendorSlot_ValidatesArgs(t *testing.T) {
	ctx := context.Background()

	if _, err := AcquireVendorSlot(ctx, nil, "k", 1, 1); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if err := ReleaseVendorSlot(ctx, nil, "k"); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
