package tui

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"raglab/internal/domain"
)

var (
	boxStyle       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	focusBoxStyle  = boxStyle.BorderForeground(lipgloss.Color("12"))
	titleStyle     = lipgloss.NewStyle().Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	spinnerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	overlapStyle   = lipgloss.NewStyle().Underline(true).Faint(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// blockColors cycle so neighbouring blocks are always distinguishable.
var blockColors = []lipgloss.Color{"6", "3", "5", "2", "4", "1"}

const textHeight = 6

func (m *Model) resize(width, height int) {
	inner := max(20, width-4)
	m.text.SetWidth(inner)
	m.text.SetHeight(textHeight)
	m.query.Width = max(10, inner-len(m.query.Prompt))
	m.bar.Width = max(10, width/3)

	// header, text box, controls, query box, matches, status
	reserved := 1 + (textHeight + 2) + 1 + 3 + (m.topK + 1) + 1
	if n := len(m.coord.Files()); n > 0 {
		reserved += n + 1
	}
	m.blocks.Width = inner
	m.blocks.Height = max(3, height-reserved-2)
	m.refreshBlocks()
}

func (m *Model) refreshBlocks() {
	m.blocks.SetContent(renderBlocks(m.coord.Blocks(), m.blocks.Width))
}

// View renders the lab: inputs on top, blocks in the middle, progress and
// matches below.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	in := m.coord.Inputs()

	header := titleStyle.Render("raglab") + dimStyle.Render(fmt.Sprintf("  %d blocks  tab: next field  ctrl+t: strategy  ctrl+c: quit", len(m.coord.Blocks())))

	textBox := boxStyle
	queryBox := boxStyle
	switch m.focus {
	case fieldText:
		textBox = focusBoxStyle
	case fieldQuery:
		queryBox = focusBoxStyle
	}

	controls := fmt.Sprintf("strategy %s   %s   %s",
		highlightStyle.Render(string(in.Split.Strategy)), m.size.View(), m.overlap.View())

	var b strings.Builder
	b.WriteString(header + "\n")
	b.WriteString(textBox.Render(m.text.View()) + "\n")
	b.WriteString(controls + "\n")
	b.WriteString(queryBox.Render(m.query.View()) + "\n")
	b.WriteString(boxStyle.Render(m.blocks.View()) + "\n")
	if files := m.renderFiles(); files != "" {
		b.WriteString(files + "\n")
	}
	b.WriteString(m.renderMatches(in.Query) + "\n")
	b.WriteString(m.renderStatus())
	return b.String()
}

func (m Model) renderStatus() string {
	st := m.coord.State()
	switch st.Phase {
	case domain.PhaseError:
		return errorStyle.Render(st.String())
	case domain.PhaseIdle, "":
		return statusStyle.Render(st.String())
	case domain.PhaseLoadingModel:
		return m.spinner.View() + " " + statusStyle.Render(fmt.Sprintf("loading model %.0f%%", m.coord.Overall()))
	default:
		return m.spinner.View() + " " + statusStyle.Render(st.String())
	}
}

// renderFiles draws one bar per model file while the model is loading.
func (m Model) renderFiles() string {
	if m.coord.State().Phase != domain.PhaseLoadingModel {
		return ""
	}
	files := m.coord.Files()
	lines := make([]string, 0, len(files)+1)
	for _, f := range files {
		name := f.File
		if len(name) > 24 {
			name = "…" + name[len(name)-23:]
		}
		lines = append(lines, fmt.Sprintf("%-24s %s %3.0f%% %s", name, m.bar.ViewAs(f.Percent()/100), f.Percent(), dimStyle.Render(string(f.Phase))))
	}
	lines = append(lines, fmt.Sprintf("%-24s %s %3.0f%%", "overall", m.bar.ViewAs(m.coord.Overall()/100), m.coord.Overall()))
	return strings.Join(lines, "\n")
}

func (m Model) renderMatches(query string) string {
	if query == "" {
		return dimStyle.Render("Type a query to rank the blocks.")
	}
	matches := m.coord.Matches(m.topK)
	if len(matches) == 0 {
		return dimStyle.Render("No matches yet.")
	}
	lines := make([]string, 0, len(matches)+1)
	lines = append(lines, titleStyle.Render(fmt.Sprintf("Top %d for %q", len(matches), query)))
	for _, r := range matches {
		text := highlightBestSentence(oneLine(truncate(r.Block.Text, 160)), query)
		lines = append(lines, fmt.Sprintf("%s %s", dimStyle.Render(fmt.Sprintf("#%-3d %.3f", r.Index, r.Score)), text))
	}
	return strings.Join(lines, "\n")
}

// renderBlocks colours each block and underlines the part it shares with the
// previous block.
func renderBlocks(blocks []domain.TextBlock, width int) string {
	if len(blocks) == 0 {
		return dimStyle.Render("No blocks yet.")
	}
	var b strings.Builder
	prevEnd := 0
	for i, blk := range blocks {
		style := lipgloss.NewStyle().Foreground(blockColors[i%len(blockColors)])
		if width > 0 {
			style = style.Width(width)
		}
		runes := []rune(blk.Text)
		shared := min(max(0, prevEnd-blk.Start), len(runes))
		if n, ok := blk.Metadata["overlap"].(int); ok && n > shared {
			shared = min(n, len(runes))
		}
		label := dimStyle.Render(fmt.Sprintf("#%d [%d:%d] ", i, blk.Start, blk.End))
		body := overlapStyle.Render(oneLine(string(runes[:shared]))) + oneLine(string(runes[shared:]))
		b.WriteString(style.Render(label + body))
		b.WriteString("\n")
		prevEnd = blk.End
	}
	return strings.TrimRight(b.String(), "\n")
}

func oneLine(s string) string {
	return strings.ReplaceAll(s, "\n", "↵")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx && bestScore > 0 {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := make(map[string]struct{})
	for _, t := range unicodeWordRe.FindAllString(strings.ToLower(sentence), -1) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
