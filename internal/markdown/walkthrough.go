package markdown

import (
	"fmt"
	"strings"

	"github.com/khulnasoft/pr-insight/internal/models"
)

// CollapsibleFileListThreshold is the file count above which an "adaptive"
// walkthrough collapses each label group.
const CollapsibleFileListThreshold = 8

const walkthroughWidth = 75

// FileChange is one row of the description walkthrough.
type FileChange struct {
	Filename string
	Title    string
	Summary  string
}

// LabeledFiles groups walkthrough rows under a semantic label.
type LabeledFiles struct {
	Label string
	Files []FileChange
}

// WalkthroughOptions configure FilesTable.
type WalkthroughOptions struct {
	Collapsible bool
	DiffFiles   []models.FilePatchInfo
	Links       LineLinker
}

// CountFiles returns the number of rows across all groups.
func CountFiles(groups []LabeledFiles) int {
	n := 0
	for _, g := range groups {
		n += len(g.Files)
	}
	return n
}

// FilesTable renders the "Relevant files" table of a PR description.
func FilesTable(groups []LabeledFiles, opts WalkthroughOptions) string {
	var b strings.Builder
	width := walkthroughWidth - 5

	b.WriteString("<table>")
	b.WriteString(`<thead><tr><th></th><th align="left">Relevant files</th></tr></thead>`)
	b.WriteString("<tbody>")
	for _, g := range groups {
		label := strings.Trim(strings.Trim(g.Label, "'"), `"`)
		fmt.Fprintf(&b, "<tr><td><strong>%s</strong></td>", capitalize(label))
		if opts.Collapsible {
			fmt.Fprintf(&b, "<td><details><summary>%d files</summary><table>", len(g.Files))
		} else {
			b.WriteString("<td><table>")
		}
		for _, f := range g.Files {
			filename := strings.TrimRight(strings.ReplaceAll(f.Filename, "'", "`"), " \t\n")
			short := filename[strings.LastIndex(filename, "/")+1:]

			title := strings.TrimSpace(InsertBR("<code>"+f.Title+"</code>", width))
			if n := len(title); n < width {
				title += strings.Repeat("&nbsp; ", width-n)
			}
			publish := fmt.Sprintf("<strong>%s</strong><dd>%s</dd>", short, title)

			plusMinus, nbsp := "", ""
			for _, d := range opts.DiffFiles {
				if strings.EqualFold(strings.Trim(d.Filename, "/"), strings.Trim(filename, "/")) {
					plusMinus = fmt.Sprintf("+%d/-%d", d.NumPlusLines, d.NumMinusLines)
					nbsp = strings.Repeat("&nbsp; ", max(0, 8-len(plusMinus)))
					break
				}
			}
			link := ""
			if opts.Links != nil {
				link = opts.Links.LineLink(strings.TrimSpace(filename), -1, -1)
			}

			fmt.Fprintf(&b, `
<tr>
  <td>
    <details>
      <summary>%s</summary>
<hr>

%s

%s


</details>


  </td>
  <td><a href="%s">%s</a>%s</td>

</tr>
`, publish, filename, InsertBR(f.Summary, width), link, plusMinus, nbsp)
		}
		if opts.Collapsible {
			b.WriteString("</table></details></td></tr>")
		} else {
			b.WriteString("</table></td></tr>")
		}
	}
	b.WriteString("</tr></tbody></table>")
	return b.String()
}
