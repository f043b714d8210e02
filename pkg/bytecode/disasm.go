package bytecode

import (
	"fmt"
	"strings"
)

// Dump renders packed tables in a human-readable form for inspection and
// golden tests. The output is stable for a fixed ProjectionData.
func Dump(pd *ProjectionData) string {
	var b strings.Builder

	fmt.Fprintf(&b, "primitives (%d):\n", len(pd.Primitives))
	for i, v := range pd.Primitives {
		fmt.Fprintf(&b, "  [%d] %#v\n", i, v)
	}

	fmt.Fprintf(&b, "getters (%d):\n", len(pd.Getters))
	for i, row := range pd.Getters {
		fmt.Fprintf(&b, "  [%d] %s meta=%d args=%s", i,
			describeRef(pd, row[GetterType]), row[GetterMeta].Payload(), refList(row[GetterArgs:]))
		if i < len(pd.Sources) && pd.Sources[i] != "" {
			fmt.Fprintf(&b, " ; %s", pd.Sources[i])
		}
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "topLevels (%d):\n", len(pd.TopLevelProjections))
	for i, r := range pd.TopLevelProjections {
		name := "(internal)"
		if pd.TopLevelNames[i] >= 0 {
			name = fmt.Sprintf("%v", pd.Primitives[pd.TopLevelNames[i]])
		}
		fmt.Fprintf(&b, "  [%d] %s = %s\n", i, name, r)
	}

	fmt.Fprintf(&b, "metaData (%d):\n", len(pd.MetaData))
	for i, row := range pd.MetaData {
		fmt.Fprintf(&b, "  [%d] flags=%#x paths=%v\n", i, row[0], row[1:])
	}

	fmt.Fprintf(&b, "paths (%d):\n", len(pd.Paths))
	for i, row := range pd.Paths {
		fmt.Fprintf(&b, "  [%d] cond=%s steps=%s\n", i, row[0], refList(row[1:]))
	}

	fmt.Fprintf(&b, "setters (%d):\n", len(pd.Setters))
	for _, row := range pd.Setters {
		fmt.Fprintf(&b, "  %v %s tokens=%d steps=%s\n",
			pd.Primitives[row[SetterName].Payload()],
			describeRef(pd, row[SetterKind]),
			row[SetterTokens].Payload(),
			refList(row[SetterSteps:]))
	}

	return b.String()
}

func describeRef(pd *ProjectionData, r Ref) string {
	if r.IsPrimitive() {
		return fmt.Sprintf("%v", pd.Primitives[r.Payload()])
	}
	return r.String()
}

func refList(refs []Ref) string {
	parts := make([]string, len(refs))
	for i, r := range refs {
		parts[i] = r.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
