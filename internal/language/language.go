// Package language maps a snippet's language tag to the file extension
// used for its blob object.
package language

// extensions is the fixed language → extension table. Unknown languages
// fall back to "txt" rather than failing the upload.
var extensions = map[string]string{
	"javascript": "js",
	"typescript": "ts",
	"python":     "py",
	"java":       "java",
	"c":          "c",
	"cpp":        "cpp",
	"csharp":     "cs",
	"go":         "go",
	"ruby":       "rb",
	"swift":      "swift",
	"kotlin":     "kt",
	"rust":       "rs",
	"scala":      "scala",
	"php":        "php",
	"perl":       "pl",
	"r":          "r",
	"bash":       "sh",
	"powershell": "ps1",
	"plaintext":  "txt",
}

// Extension returns the blob file extension for a language tag.
func Extension(lang string) string {
	if ext, ok := extensions[lang]; ok {
		return ext
	}
	return "txt"
}

// Known reports whether the language tag has a dedicated extension.
func Known(lang string) bool {
	_, ok := extensions[lang]
	return ok
}
