// Copyright © 2025 The DraftPad authors

package instrument

import "fmt"

// SyncSlotName returns the name of the generated synchronous hook
// slot for a shim suffix.
func SyncSlotName(suffix string) string {
	return "draftpadBreakSync_" + suffix
}

// AsyncSlotName returns the name of the generated asynchronous hook
// slot for a shim suffix.
func AsyncSlotName(suffix string) string {
	return "draftpadBreakAsync_" + suffix
}

// BinderName returns the name of the exported setter the host calls
// after loading the compiled unit to bind the hook slots.
func BinderName(suffix string) string {
	return "DraftpadBindHooks_" + suffix
}

// ShimSource generates the debug shim unit for a package. The unit is
// freshly named per compilation (the suffix) so recompiles never
// clash on symbols. The slots default to no-ops: instrumented code is
// inert until the host binds concrete handlers through the setter.
func ShimSource(pkg, suffix string) string {
	return fmt.Sprintf(`// Code generated by draftpad. DO NOT EDIT.

package %[1]s

import "context"

var (
	%[2]s  = func(offset int, names []string, metas []string, values []any) {}
	%[3]s = func(ctx context.Context, offset int, names []string, metas []string, values []any) error { return nil }
)

// %[4]s binds the debug hook slots. The host calls it once after the
// compiled unit loads; a nil hook leaves the corresponding slot inert.
func %[4]s(
	syncHook func(int, []string, []string, []any),
	asyncHook func(context.Context, int, []string, []string, []any) error,
) {
	if syncHook != nil {
		%[2]s = syncHook
	}
	if asyncHook != nil {
		%[3]s = asyncHook
	}
}
`, pkg, SyncSlotName(suffix), AsyncSlotName(suffix), BinderName(suffix))
}
