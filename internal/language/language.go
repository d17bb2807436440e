// Package language maps file extensions to programming languages and orders
// PR files so the main languages of the repository come first.
package language

import (
	"path"
	"sort"
	"strings"

	"github.com/khulnasoft/pr-insight/internal/models"
)

// OtherLanguage is the bucket for files that match none of the repo languages.
const OtherLanguage = "Other"

// Extensions maps a language name to the file extensions it owns.
var Extensions = map[string][]string{
	"ABAP":         {".abap"},
	"Ada":          {".adb", ".ads", ".ada"},
	"Assembly":     {".asm", ".s"},
	"Bash":         {".sh", ".bash"},
	"Batchfile":    {".bat", ".cmd"},
	"C":            {".c", ".h"},
	"C#":           {".cs", ".csx"},
	"C++":          {".cpp", ".hpp", ".cc", ".hh", ".cxx", ".hxx", ".c++", ".h++", ".ipp"},
	"Clojure":      {".clj", ".cljs", ".cljc", ".edn"},
	"CMake":        {".cmake"},
	"CoffeeScript": {".coffee"},
	"CSS":          {".css", ".scss", ".sass", ".less"},
	"Dart":         {".dart"},
	"Dockerfile":   {".dockerfile"},
	"Elixir":       {".ex", ".exs"},
	"Elm":          {".elm"},
	"Erlang":       {".erl", ".hrl"},
	"F#":           {".fs", ".fsi", ".fsx"},
	"Fortran":      {".f", ".f90", ".f95", ".for"},
	"Go":           {".go"},
	"Groovy":       {".groovy", ".gradle"},
	"Haskell":      {".hs", ".lhs"},
	"HCL":          {".tf", ".tfvars", ".hcl"},
	"HTML":         {".html", ".htm", ".xhtml"},
	"Java":         {".java"},
	"JavaScript":   {".js", ".jsx", ".mjs", ".cjs"},
	"Julia":        {".jl"},
	"Kotlin":       {".kt", ".kts"},
	"Lua":          {".lua"},
	"Makefile":     {".mk", ".mak"},
	"Markdown":     {".md", ".markdown", ".mdx"},
	"Nim":          {".nim"},
	"Nix":          {".nix"},
	"Objective-C":  {".m", ".mm"},
	"OCaml":        {".ml", ".mli"},
	"Perl":         {".pl", ".pm"},
	"PHP":          {".php", ".phtml"},
	"PowerShell":   {".ps1", ".psm1", ".psd1"},
	"Protobuf":     {".proto"},
	"Python":       {".py", ".pyi", ".pyx"},
	"R":            {".r", ".R"},
	"Ruby":         {".rb", ".rake", ".gemspec"},
	"Rust":         {".rs"},
	"Scala":        {".scala", ".sc"},
	"Shell":        {".sh", ".zsh", ".ksh"},
	"SQL":          {".sql"},
	"Svelte":       {".svelte"},
	"Swift":        {".swift"},
	"TOML":         {".toml"},
	"TypeScript":   {".ts", ".tsx", ".mts", ".cts"},
	"Vue":          {".vue"},
	"YAML":         {".yml", ".yaml"},
	"Zig":          {".zig"},
}

// BadExtensions are never sent to the model.
var BadExtensions = []string{
	"app", "bin", "bmp", "bz2", "class", "csv", "dat", "db", "dll", "dylib",
	"egg", "eot", "exe", "gif", "gitignore", "glif", "gradle", "gz", "ico",
	"jar", "jpeg", "jpg", "lo", "lock", "log", "mp3", "mp4", "nar", "o",
	"ogg", "otf", "p", "pdf", "png", "pickle", "pkl", "pyc", "pyd", "pyo",
	"rkt", "so", "ss", "svg", "tar", "tgz", "tsv", "ttf", "war", "webm",
	"woff", "woff2", "xz", "zip", "zst", "snap", "lockb",
}

// ExtraBadExtensions are added when config.use_extra_bad_extensions is set.
var ExtraBadExtensions = []string{"md", "txt"}

var autoGeneratedFiles = []string{"package-lock.json", "yarn.lock", "composer.lock", "Gemfile.lock", "poetry.lock"}

// FileGroup is the set of PR files written in one language.
type FileGroup struct {
	Language string
	Files    []models.FilePatchInfo
}

// IsValidFile reports whether filename may be included in a prompt.
func IsValidFile(filename string, useExtra bool) bool {
	if filename == "" {
		return false
	}
	for _, f := range autoGeneratedFiles {
		if strings.HasSuffix(filename, f) {
			return false
		}
	}
	ext := lastPart(filename)
	bad := BadExtensions
	if useExtra {
		bad = append(append([]string{}, BadExtensions...), ExtraBadExtensions...)
	}
	for _, b := range bad {
		if ext == b {
			return false
		}
	}
	return true
}

// FilterBadExtensions drops binary, generated and lock files.
func FilterBadExtensions(files []models.FilePatchInfo, useExtra bool) []models.FilePatchInfo {
	out := make([]models.FilePatchInfo, 0, len(files))
	for _, f := range files {
		if IsValidFile(f.Filename, useExtra) {
			out = append(out, f)
		}
	}
	return out
}

// SortFilesByMainLanguages groups files by the repository languages ordered
// by size. Languages without files are omitted and the Other group is always
// last.
func SortFilesByMainLanguages(languages map[string]int, files []models.FilePatchInfo, useExtra bool) []FileGroup {
	filtered := FilterBadExtensions(files, useExtra)
	if len(languages) == 0 {
		return []FileGroup{{Language: OtherLanguage, Files: filtered}}
	}

	ordered := sortedLanguages(languages)
	lowered := lowerExtensionMap()
	mainExts := make([][]string, len(ordered))
	allMain := make(map[string]bool)
	for i, lang := range ordered {
		mainExts[i] = lowered[strings.ToLower(lang)]
		for _, e := range mainExts[i] {
			allMain[e] = true
		}
	}

	var groups []FileGroup
	rest := make([]models.FilePatchInfo, 0)
	seen := make(map[string]bool)
	for i, lang := range ordered {
		var tmp []models.FilePatchInfo
		for _, f := range filtered {
			ext := "." + lastPart(f.Filename)
			if contains(mainExts[i], ext) {
				tmp = append(tmp, f)
				continue
			}
			if !seen[f.Filename] && !allMain[ext] {
				seen[f.Filename] = true
				rest = append(rest, f)
			}
		}
		if len(tmp) > 0 {
			groups = append(groups, FileGroup{Language: lang, Files: tmp})
		}
	}
	return append(groups, FileGroup{Language: OtherLanguage, Files: rest})
}

// MainLanguage returns the repository's top language when the PR's most
// common extension belongs to it, otherwise the language of that extension.
// The result is lowercase, or "" when it cannot be determined.
func MainLanguage(languages map[string]int, filenames []string) string {
	if len(languages) == 0 || len(filenames) == 0 {
		return ""
	}
	top := strings.ToLower(sortedLanguages(languages)[0])

	counts := make(map[string]int)
	best := ""
	for _, name := range filenames {
		if name == "" {
			continue
		}
		ext := lastPart(name)
		counts[ext]++
		if counts[ext] > counts[best] || (counts[ext] == counts[best] && ext < best) {
			best = ext
		}
	}
	if best == "" {
		return ""
	}
	common := "." + best

	lowered := lowerExtensionMap()
	if contains(lowered[top], common) {
		return top
	}
	names := make([]string, 0, len(lowered))
	for name := range lowered {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if contains(lowered[name], common) {
			return name
		}
	}
	return ""
}

// Of returns the language owning filename's extension, or "".
func Of(filename string) string {
	ext := path.Ext(filename)
	if ext == "" {
		return ""
	}
	names := make([]string, 0, len(Extensions))
	for name := range Extensions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if contains(Extensions[name], ext) || contains(Extensions[name], strings.ToLower(ext)) {
			return name
		}
	}
	return ""
}

// FromFiles counts changed files per language, for providers that do not
// report repository languages.
func FromFiles(filenames []string) map[string]int {
	out := make(map[string]int)
	for _, f := range filenames {
		if lang := Of(f); lang != "" {
			out[lang]++
		}
	}
	return out
}

func sortedLanguages(languages map[string]int) []string {
	names := make([]string, 0, len(languages))
	for name := range languages {
		names = append(names, name)
	}
	sort.SliceStable(names, func(i, j int) bool {
		if languages[names[i]] != languages[names[j]] {
			return languages[names[i]] > languages[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}

func lowerExtensionMap() map[string][]string {
	out := make(map[string][]string, len(Extensions))
	for k, v := range Extensions {
		out[strings.ToLower(k)] = v
	}
	return out
}

func lastPart(filename string) string {
	if i := strings.LastIndex(filename, "."); i >= 0 {
		return filename[i+1:]
	}
	return filename
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
