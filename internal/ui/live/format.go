package live

import (
	"fmt"
	"slices"
	"strings"

	"github.com/szhem/osgi-utils/internal/pubsub"
	"github.com/szhem/osgi-utils/internal/registry"
	"github.com/szhem/osgi-utils/internal/tracker"
)

// FormatReference renders a reference on one line: id, interfaces, then the
// non-reserved attributes in key order.
func FormatReference(ref registry.Reference) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%s %s", ref.ID(), strings.Join(ref.Interfaces(), ","))

	attrs := ref.Attributes()
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		if k == registry.AttrObjectClass || k == registry.AttrServiceID {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, attrs[k])
	}
	return b.String()
}

// FormatChange renders a change feed event as "+ ..." or "- ...".
func FormatChange(ev pubsub.Event[tracker.TrackedEntry]) string {
	sign := "+"
	if ev.Type == pubsub.RemovedEvent {
		sign = "-"
	}
	return sign + " " + FormatReference(ev.Payload.Reference)
}
