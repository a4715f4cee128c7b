package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_EmptyDiff(t *testing.T) {
	d := Validate("", 0, 0)
	assert.False(t, d.Valid)
	assert.Equal(t, "empty_diff", d.Reason)
	assert.Equal(t, "fail", d.Severity)
}

func TestValidate_Passes(t *testing.T) {
	diff := `diff --git a/foo.py b/foo.py
index 111..222 100644
--- a/foo.py
+++ b/foo.py
@@ -1,2 +1,3 @@
 def foo():
+    return 1
     pass
`
	d := Validate(diff, 0, 0)
	assert.True(t, d.Valid)
	assert.Equal(t, 1, d.ChangedFiles)
	assert.Equal(t, 1, d.AddedLines)
}

func TestValidate_TooManyFiles(t *testing.T) {
	diff := "diff --git a/a.py b/a.py\n+x\n" +
		"diff --git a/b.py b/b.py\n+x\n" +
		"diff --git a/c.py b/c.py\n+x\n" +
		"diff --git a/d.py b/d.py\n+x\n"
	d := Validate(diff, 0, 3)
	assert.False(t, d.Valid)
	assert.Equal(t, "too_many_files:4", d.Reason)
}

func TestValidate_CatastrophicDeletion(t *testing.T) {
	diff := "diff --git a/foo.py b/foo.py\n"
	for i := 0; i < 60; i++ {
		diff += "-line\n"
	}
	diff += "+line\n"
	d := Validate(diff, 0, 0)
	assert.False(t, d.Valid)
	assert.Equal(t, "catastrophic_deletion:60_removed_vs_1_added", d.Reason)
}

func TestValidate_CatastrophicDeletion_RequiresSomeAddition(t *testing.T) {
	diff := "diff --git a/foo.py b/foo.py\n"
	for i := 0; i < 60; i++ {
		diff += "-line\n"
	}
	d := Validate(diff, 0, 0)
	assert.True(t, d.Valid)
}

func TestValidate_MaxChangedLines(t *testing.T) {
	diff := "diff --git a/foo.py b/foo.py\n"
	for i := 0; i < 30; i++ {
		diff += "+line\n"
	}
	d := Validate(diff, 10, 0)
	assert.False(t, d.Valid)
	assert.Equal(t, "max_changed_lines_exceeded", d.Reason)
}

func TestValidate_DuplicateLines(t *testing.T) {
	diff := "diff --git a/foo.py b/foo.py\n"
	for i := 0; i < 5; i++ {
		diff += "+print('x')\n"
	}
	d := Validate(diff, 0, 0)
	assert.False(t, d.Valid)
	assert.Equal(t, "duplicate_lines", d.Reason)
}

func TestValidate_DuplicateLines_NonConsecutive(t *testing.T) {
	diff := "diff --git a/foo.py b/foo.py\n" +
		"+print('x')\n" +
		"+print('y')\n" +
		"+print('x')\n" +
		"+print('z')\n" +
		"+print('x')\n" +
		"+print('w')\n" +
		"+print('x')\n"
	d := Validate(diff, 0, 0)
	assert.False(t, d.Valid)
	assert.Equal(t, "duplicate_lines", d.Reason)
}

func TestValidate_PlaceholderCode(t *testing.T) {
	diff := "diff --git a/foo.py b/foo.py\n+    # TODO: implement\n"
	d := Validate(diff, 0, 0)
	assert.False(t, d.Valid)
	assert.Equal(t, "placeholder_code", d.Reason)
}

func TestValidate_PlaceholderCode_IgnoresRemovedLines(t *testing.T) {
	diff := "diff --git a/foo.py b/foo.py\n-    # TODO: implement\n+    return 1\n"
	d := Validate(diff, 0, 0)
	assert.True(t, d.Valid)
}

func TestValidate_PlaceholderCode_NotImplementedError(t *testing.T) {
	diff := "diff --git a/foo.py b/foo.py\n+    raise NotImplementedError\n"
	d := Validate(diff, 0, 0)
	assert.False(t, d.Valid)
	assert.Equal(t, "placeholder_code", d.Reason)
}

func TestValidate_NoFileHeaders(t *testing.T) {
	d := Validate("not a real diff", 0, 0)
	assert.False(t, d.Valid)
	assert.Equal(t, "no_file_headers", d.Reason)
}

func TestFormatCompileFailureTask(t *testing.T) {
	out := FormatCompileFailureTask(nil)
	assert.Contains(t, out, "Fix the compile errors first")
}
