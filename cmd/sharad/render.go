package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"sharad-cli/internal/agent/colors"
	"sharad-cli/internal/character"
	"sharad-cli/internal/utils/terminal"
)

const boxWidth = 58

//
// Banner & 帮助 & Session Info & Stats
//

func printBanner() {
	title := colors.Paint("🎲 Sharad - Shadowrun in the terminal", colors.BOLD)
	line := terminal.PadToWidth(title, boxWidth, terminal.AlignCenter)

	fmt.Println()
	fmt.Printf("%s%s╔%s╗%s\n", colors.BOLD, colors.BRIGHT_CYAN, strings.Repeat("═", boxWidth), colors.RESET)
	fmt.Printf("%s%s║%s%s%s║%s\n", colors.BOLD, colors.BRIGHT_CYAN, line, colors.BOLD, colors.BRIGHT_CYAN, colors.RESET)
	fmt.Printf("%s%s╚%s╝%s\n", colors.BOLD, colors.BRIGHT_CYAN, strings.Repeat("═", boxWidth), colors.RESET)
	fmt.Println()
}

func printHelp() {
	fmt.Printf(`
%s%sAvailable Commands:%s
  %s/sheet [name]%s - Show a character sheet (default: main character)
  %s/roster%s       - List known characters
  %s/recap%s        - Summarize the story so far
  %s/images%s       - List generated portraits
  %s/tools%s        - Show tool definitions
  %s/stats%s        - Show session statistics
  %s/quit%s         - Exit program (also: exit, quit, q)

%s%sNotes:%s
  - 直接输入角色的行动并回车，由 game master 推进剧情
  - 回合进行中按 Ctrl-C 取消当前回合
`,
		colors.BOLD, colors.BRIGHT_YELLOW, colors.RESET,
		colors.BRIGHT_GREEN, colors.RESET,
		colors.BRIGHT_GREEN, colors.RESET,
		colors.BRIGHT_GREEN, colors.RESET,
		colors.BRIGHT_GREEN, colors.RESET,
		colors.BRIGHT_GREEN, colors.RESET,
		colors.BRIGHT_GREEN, colors.RESET,
		colors.BRIGHT_GREEN, colors.RESET,

		colors.BOLD, colors.BRIGHT_YELLOW, colors.RESET,
	)
}

func (s *session) printSessionInfo() {
	st := s.agent.State()
	lines := []string{
		"Model: " + s.client.Model(),
		"Save: " + st.SaveName,
		"Assistant: " + st.AssistantID,
		"Thread: " + st.ThreadID,
		fmt.Sprintf("Available Tools: %d tools", len(s.registry.List())),
	}
	fmt.Println(colors.Paint(terminal.Box("Session Info", lines, boxWidth-2), colors.DIM))
	fmt.Println()
	fmt.Printf("%sType %s/help%s for help, %s/quit%s to quit%s\n\n",
		colors.DIM, colors.BRIGHT_GREEN, colors.DIM, colors.BRIGHT_GREEN, colors.DIM, colors.RESET)
}

func (s *session) printStats() {
	dur := time.Since(s.start)
	totalSec := int(dur.Seconds())

	fmt.Printf("\n%s%sSession Statistics:%s\n", colors.BOLD, colors.BRIGHT_CYAN, colors.RESET)
	fmt.Printf("%s%s%s\n", colors.DIM, strings.Repeat("─", 40), colors.RESET)
	fmt.Printf("  Session Duration: %02d:%02d:%02d\n", totalSec/3600, (totalSec%3600)/60, totalSec%60)
	fmt.Printf("  Turns: %s%d%s\n", colors.BRIGHT_GREEN, s.turns, colors.RESET)
	fmt.Printf("  Failed Turns: %s%d%s\n", colors.BRIGHT_RED, s.failed, colors.RESET)
	fmt.Printf("  Characters: %d\n", len(s.agent.Roster()))
	fmt.Printf("  Portraits: %d\n", len(s.gallery))
	fmt.Printf("%s%s%s\n\n", colors.DIM, strings.Repeat("─", 40), colors.RESET)
}

//
// 叙事与角色卡
//

func printNarration(text string) {
	fmt.Println()
	for _, line := range terminal.Wrap(text, boxWidth+2) {
		fmt.Println(colors.Paint(line, colors.NARRATOR))
	}
	fmt.Println()
}

// summarizeOutput 单行化并截断工具输出
func summarizeOutput(output string, limit int) string {
	flat := strings.Join(strings.Fields(output), " ")
	return terminal.TruncateWithEllipsis(flat, limit)
}

func (s *session) printRoster() {
	roster := s.agent.Roster()
	if len(roster) == 0 {
		fmt.Printf("%sNo characters yet.%s\n\n", colors.DIM, colors.RESET)
		return
	}

	lead := s.agent.State().MainCharacter()
	for _, c := range roster {
		marker := "  "
		if lead != nil && lead.Name == c.Name {
			marker = colors.Paint("★ ", colors.BRIGHT_YELLOW)
		}
		fmt.Printf("%s%-24s %s\n", marker, c.Name, colors.Paint(fmt.Sprintf("%s, %s", c.Race, c.Gender), colors.DIM))
	}
	fmt.Println()
}

func (s *session) printSheet(name string) {
	st := s.agent.State()

	sheet := st.MainCharacter()
	if name != "" {
		found, ok := st.FindCharacter(name)
		if !ok {
			fmt.Printf("%s❌ No character named %q%s\n\n", colors.RED, name, colors.RESET)
			return
		}
		sheet = found
	} else if sheet == nil && len(st.Roster()) > 0 {
		sheet = st.Roster()[0]
	}
	if sheet == nil {
		fmt.Printf("%sNo characters yet.%s\n\n", colors.DIM, colors.RESET)
		return
	}

	fmt.Println(terminal.Box(sheet.Name, renderSheet(sheet), boxWidth-2))
	fmt.Println()
}

// renderSheet 角色卡的文本行，空的分组不输出
func renderSheet(s *character.Sheet) []string {
	a := s.Attributes
	d := s.Derived

	lines := []string{
		fmt.Sprintf("%s · %s · %d¥", s.Race, s.Gender, s.Nuyen),
		"",
		fmt.Sprintf("BOD %d  AGI %d  REA %d  STR %d", a.Body, a.Agility, a.Reaction, a.Strength),
		fmt.Sprintf("WIL %d  LOG %d  INT %d  CHA %d  EDG %d", a.Willpower, a.Logic, a.Intuition, a.Charisma, a.Edge),
	}
	if s.Magic != nil {
		lines = append(lines, fmt.Sprintf("Magic %d", *s.Magic))
	}
	if s.Resonance != nil {
		lines = append(lines, fmt.Sprintf("Resonance %d", *s.Resonance))
	}

	lines = append(lines,
		fmt.Sprintf("Initiative %d+%dd6  Essence %.1f", d.Initiative.Base, d.Initiative.Dice, d.Essence.Current),
		fmt.Sprintf("Limits P%d M%d S%d  Monitors %d/%d", d.Limits.Physical, d.Limits.Mental, d.Limits.Social, d.Monitors.Physical, d.Monitors.Stun),
	)

	skills := map[string]character.SkillMap{
		"Combat":    s.Skills.Combat,
		"Physical":  s.Skills.Physical,
		"Social":    s.Skills.Social,
		"Technical": s.Skills.Technical,
		"Knowledge": s.KnowledgeSkills,
	}
	for _, group := range []string{"Combat", "Physical", "Social", "Technical", "Knowledge"} {
		if entries := ratingList(skills[group]); entries != "" {
			lines = append(lines, group+": "+entries)
		}
	}

	if len(s.Qualities) > 0 {
		var qs []string
		for _, q := range s.Qualities {
			sign := "-"
			if q.Positive {
				sign = "+"
			}
			qs = append(qs, sign+q.Name)
		}
		lines = append(lines, "Qualities: "+strings.Join(qs, ", "))
	}
	if len(s.Cyberware) > 0 {
		lines = append(lines, "Cyberware: "+strings.Join(s.Cyberware, ", "))
	}
	if len(s.Bioware) > 0 {
		lines = append(lines, "Bioware: "+strings.Join(s.Bioware, ", "))
	}
	for _, name := range slices.Sorted(maps.Keys(s.Inventory)) {
		it := s.Inventory[name]
		lines = append(lines, fmt.Sprintf("• %s ×%d", it.Name, it.Quantity))
	}
	for _, name := range slices.Sorted(maps.Keys(s.Contacts)) {
		c := s.Contacts[name]
		lines = append(lines, fmt.Sprintf("☎ %s (L%d/C%d)", c.Name, c.Loyalty, c.Connection))
	}
	if m := s.MatrixAttributes; m != nil {
		lines = append(lines, fmt.Sprintf("Matrix A%d S%d D%d F%d", m.Attack, m.Sleaze, m.DataProcessing, m.Firewall))
	}
	return lines
}

func ratingList(m character.SkillMap) string {
	var out []string
	for _, name := range slices.Sorted(maps.Keys(m)) {
		out = append(out, fmt.Sprintf("%s %d", name, m[name]))
	}
	return strings.Join(out, ", ")
}
