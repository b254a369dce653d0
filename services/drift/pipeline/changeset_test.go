// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromPaths(t *testing.T) {
	cs := FromPaths([]string{
		"clippy_lints/src/lib.rs",
		"./clippy_lints/src/lib.rs", // duplicate after normalization
		"tests/ui/foo.rs",
		"",
		"tests/ui/foo.rs",
	})

	assert.Equal(t, []string{"clippy_lints/src/lib.rs", "tests/ui/foo.rs"}, cs.Paths())
	assert.Equal(t, 2, cs.Len())
	assert.False(t, cs.Empty())
	assert.True(t, FromPaths(nil).Empty())
}

func TestFromUnifiedDiff(t *testing.T) {
	unified := `diff --git a/clippy_lints/src/lib.rs b/clippy_lints/src/lib.rs
index 1111111..2222222 100644
--- a/clippy_lints/src/lib.rs
+++ b/clippy_lints/src/lib.rs
@@ -1,2 +1,3 @@
 mod methods;
+mod new_lint;
 mod types;
diff --git a/tests/ui/old_name.rs b/tests/ui/new_name.rs
index 3333333..4444444 100644
--- a/tests/ui/old_name.rs
+++ b/tests/ui/new_name.rs
@@ -1 +1 @@
-old
+new
diff --git a/removed.rs b/removed.rs
index 5555555..0000000 100644
--- a/removed.rs
+++ /dev/null
@@ -1 +0,0 @@
-gone
`
	cs, err := FromUnifiedDiff(strings.NewReader(unified))
	require.NoError(t, err)

	paths := cs.Paths()
	assert.Contains(t, paths, "clippy_lints/src/lib.rs")
	// A rename contributes both sides.
	assert.Contains(t, paths, "tests/ui/old_name.rs")
	assert.Contains(t, paths, "tests/ui/new_name.rs")
	assert.Contains(t, paths, "removed.rs")
	assert.NotContains(t, paths, "/dev/null")
}

func TestFromUnifiedDiff_Empty(t *testing.T) {
	cs, err := FromUnifiedDiff(strings.NewReader(""))
	require.NoError(t, err)
	assert.True(t, cs.Empty())
}
