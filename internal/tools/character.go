package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/tidwall/gjson"

	"sharad-cli/internal/character"
	"sharad-cli/internal/event"
)

// CreateCharacterTool 根据 assistant 给出的完整参数创建角色。
//
// 参数无法解析时不会让回合失败：改用 character.Dummy() 作为替补，
// 记录一条警告，仍然向 assistant 报告成功。
type CreateCharacterTool struct {
	bus *event.Bus
}

func NewCreateCharacterTool(bus *event.Bus) *CreateCharacterTool {
	return &CreateCharacterTool{bus: bus}
}

func (t *CreateCharacterTool) Name() string { return "create_character_sheet" }

func (t *CreateCharacterTool) Description() string {
	return `Create a new character sheet and add it to the roster.

Set main=true for the player's own character. Racial modifiers and derived
attributes (initiative, limits, condition monitors) are computed locally.
Returns the full character sheet as JSON.`
}

func (t *CreateCharacterTool) Parameters() map[string]any {
	skills := array("Skills in this category.", namedRating())
	return object(map[string]any{
		"name":      str("Character name, unique within the game."),
		"race":      enum("Metatype.", "Human", "Elf", "Dwarf", "Ork", "Troll"),
		"gender":    str("Gender."),
		"backstory": str("Short backstory."),
		"main":      boolean("Whether this is the player character."),
		"attributes": object(map[string]any{
			"body":      integer("Body."),
			"agility":   integer("Agility."),
			"reaction":  integer("Reaction."),
			"strength":  integer("Strength."),
			"willpower": integer("Willpower."),
			"logic":     integer("Logic."),
			"intuition": integer("Intuition."),
			"charisma":  integer("Charisma."),
			"edge":      integer("Edge."),
			"magic":     integer("Magic, only for awakened characters."),
			"resonance": integer("Resonance, only for technomancers."),
		}, "body", "agility", "reaction", "strength", "willpower", "logic", "intuition", "charisma", "edge"),
		"skills": object(map[string]any{
			"combat":    skills,
			"physical":  skills,
			"social":    skills,
			"technical": skills,
			"knowledge": skills,
		}),
		"qualities": array("Positive and negative qualities.", qualitySchema()),
		"nuyen":     integer("Starting nuyen."),
		"inventory": object(map[string]any{
			"items": array("Starting gear.", itemSchema()),
		}),
		"contacts": array("Starting contacts.", contactSchema()),
	}, "name", "race", "gender", "backstory", "attributes", "skills", "qualities")
}

func (t *CreateCharacterTool) Execute(ctx context.Context, call Call) (*ToolResult, error) {
	fallback := false
	sheet, err := parseDraft(call)
	if err != nil {
		slog.Warn("character payload rejected, using fallback",
			slog.String("tool_call_id", call.ID),
			slog.Any("err", err),
		)
		sheet = character.Dummy()
		fallback = true
	}

	if err := t.bus.EmitCharacter(event.CharacterAdded{Sheet: sheet, Fallback: fallback}); err != nil {
		return nil, fmt.Errorf("emit character: %w", err)
	}

	out, err := json.Marshal(sheet)
	if err != nil {
		return nil, fmt.Errorf("encode character: %w", err)
	}
	return ok(string(out)), nil
}

func parseDraft(call Call) (*character.Sheet, error) {
	args, err := call.Args()
	if err != nil {
		return nil, err
	}

	var d character.Draft
	if d.Name, err = requireString(args, "name"); err != nil {
		return nil, err
	}
	race, err := requireString(args, "race")
	if err != nil {
		return nil, err
	}
	if d.Race, err = character.ParseRace(race); err != nil {
		return nil, err
	}
	if d.Gender, err = requireString(args, "gender"); err != nil {
		return nil, err
	}
	if d.Backstory, err = requireString(args, "backstory"); err != nil {
		return nil, err
	}
	d.Main = args.Get("main").Bool()

	attrs := args.Get("attributes")
	if !attrs.IsObject() {
		return nil, fmt.Errorf("%w: missing attributes", ErrInvalidArguments)
	}
	if err := parseAttributes(attrs, &d); err != nil {
		return nil, err
	}

	skills := args.Get("skills")
	if !skills.IsObject() {
		return nil, fmt.Errorf("%w: missing skills", ErrInvalidArguments)
	}
	if d.Skills, err = parseSkills(skills); err != nil {
		return nil, err
	}
	if d.KnowledgeSkills, err = parseSkillMap(skills.Get("knowledge"), "knowledge"); err != nil {
		return nil, err
	}

	if d.Qualities, err = parseQualities(args.Get("qualities")); err != nil {
		return nil, err
	}

	if n := args.Get("nuyen"); n.Type == gjson.Number {
		nuyen, err := toUint(n, "nuyen", math.MaxUint32)
		if err != nil {
			return nil, err
		}
		d.Nuyen = character.Nuyen(nuyen)
	}

	d.Inventory = parseStartingGear(args.Get("inventory.items"))
	d.Contacts = parseStartingContacts(args.Get("contacts"))

	return character.NewSheet(d), nil
}

func parseAttributes(attrs gjson.Result, d *character.Draft) error {
	a := &d.Attributes
	fields := []struct {
		name string
		dst  *uint8
	}{
		{"body", &a.Body},
		{"agility", &a.Agility},
		{"reaction", &a.Reaction},
		{"strength", &a.Strength},
		{"willpower", &a.Willpower},
		{"logic", &a.Logic},
		{"intuition", &a.Intuition},
		{"charisma", &a.Charisma},
		{"edge", &a.Edge},
	}
	for _, f := range fields {
		v, err := requireUint8(attrs, f.name)
		if err != nil {
			return err
		}
		*f.dst = v
	}

	var err error
	if d.Magic, err = optionalUint8(attrs, "magic"); err != nil {
		return err
	}
	if d.Resonance, err = optionalUint8(attrs, "resonance"); err != nil {
		return err
	}
	return nil
}

// parseStartingGear 初始装备里不完整的条目直接跳过
func parseStartingGear(items gjson.Result) character.Items {
	out := character.Items{}
	for _, raw := range items.Array() {
		item, err := parseItem(raw, "")
		if err != nil {
			continue
		}
		out[item.Name] = item
	}
	return out
}

// parseStartingContacts 同上，不完整的联系人跳过
func parseStartingContacts(contacts gjson.Result) character.Contacts {
	out := character.Contacts{}
	for _, raw := range contacts.Array() {
		c, err := parseContact(raw, "")
		if err != nil {
			continue
		}
		out[c.Name] = c
	}
	return out
}
