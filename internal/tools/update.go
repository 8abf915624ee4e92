package tools

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"sharad-cli/internal/character"
	"sharad-cli/internal/event"
	"sharad-cli/internal/game"
)

// updateParser 把工具参数解析为更新列表，并给出确认文本
type updateParser func(name string, args gjson.Result) ([]character.Update, string, error)

// UpdateTool 属性更新类工具的通用实现。
//
// 工具只负责解析参数并发布 event.UpdateRequest，不直接修改角色；
// 状态持有方在工具调用结束后统一应用这些更新。
type UpdateTool struct {
	name        string
	description string
	params      map[string]any
	parse       updateParser
	bus         *event.Bus
}

func (t *UpdateTool) Name() string               { return t.name }
func (t *UpdateTool) Description() string        { return t.description }
func (t *UpdateTool) Parameters() map[string]any { return t.params }

func (t *UpdateTool) Execute(ctx context.Context, call Call) (*ToolResult, error) {
	args, err := call.Args()
	if err != nil {
		return nil, err
	}
	name, err := requireString(args, "character_name")
	if err != nil {
		return nil, err
	}
	if _, found := call.State.FindCharacter(name); !found {
		return nil, fmt.Errorf("%w: %s", game.ErrCharacterNotFound, name)
	}

	updates, confirmation, err := t.parse(name, args)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return nil, fmt.Errorf("%w: no updates given", ErrInvalidArguments)
	}

	evt := event.UpdateRequest{Tool: t.name, Character: name, Updates: updates}
	if err := t.bus.EmitUpdate(evt); err != nil {
		return nil, fmt.Errorf("emit update: %w", err)
	}
	return ok(confirmation), nil
}

// NewUpdateTools 创建全部七个属性更新工具
func NewUpdateTools(bus *event.Bus) []*UpdateTool {
	return []*UpdateTool{
		{
			name: "update_basic_attributes",
			description: `Set basic fields of a character: identity (name, race, gender, backstory,
lifestyle), the nine attributes, magic/resonance (null removes) and nuyen.
Every key in "updates" is replaced with the given value.`,
			params: object(map[string]any{
				"character_name": characterName(),
				"updates": map[string]any{
					"type":                 "object",
					"description":          "Attribute name to new value, e.g. {\"nuyen\": 1200, \"body\": 4}.",
					"additionalProperties": true,
				},
			}, "character_name", "updates"),
			parse: parseBasicAttributes,
			bus:   bus,
		},
		{
			name: "update_skills",
			description: `Replace a character's active skills and/or knowledge skills.
Each category given replaces the previous one entirely.`,
			params: object(map[string]any{
				"character_name": characterName(),
				"updates": object(map[string]any{
					"skills": object(map[string]any{
						"combat":    map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "integer"}},
						"physical":  map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "integer"}},
						"social":    map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "integer"}},
						"technical": map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "integer"}},
					}),
					"knowledge_skills": map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "integer"}},
				}),
			}, "character_name", "updates"),
			parse: parseSkillUpdates,
			bus:   bus,
		},
		{
			name: "update_inventory",
			description: `Add, remove or modify items in a character's inventory, keyed by item name.
Add and Modify overwrite an existing entry with the same name.`,
			params: object(map[string]any{
				"character_name": characterName(),
				"operation":      operation(),
				"items":          array("Items to change.", itemSchema()),
			}, "character_name", "operation", "items"),
			parse: keyedUpdate("inventory", "items", "Inventory", parseItems),
			bus:   bus,
		},
		{
			name:        "update_qualities",
			description: `Add or remove qualities of a character.`,
			params: object(map[string]any{
				"character_name": characterName(),
				"operation":      operation("Add", "Remove"),
				"qualities":      array("Qualities to change.", qualitySchema()),
			}, "character_name", "operation", "qualities"),
			parse: parseQualityUpdate,
			bus:   bus,
		},
		{
			name:        "update_matrix_attributes",
			description: `Set a character's matrix attributes. Pass null to remove them.`,
			params: object(map[string]any{
				"character_name": characterName(),
				"matrix_attributes": object(map[string]any{
					"attack":          integer("Attack."),
					"sleaze":          integer("Sleaze."),
					"data_processing": integer("Data processing."),
					"firewall":        integer("Firewall."),
				}, "attack", "sleaze", "data_processing", "firewall"),
			}, "character_name", "matrix_attributes"),
			parse: parseMatrixUpdate,
			bus:   bus,
		},
		{
			name:        "update_contacts",
			description: `Add, remove or modify a character's contacts, keyed by contact name.`,
			params: object(map[string]any{
				"character_name": characterName(),
				"operation":      operation(),
				"contacts":       array("Contacts to change.", contactSchema()),
			}, "character_name", "operation", "contacts"),
			parse: parseContactUpdate,
			bus:   bus,
		},
		{
			name:        "update_augmentations",
			description: `Add or remove cyberware or bioware.`,
			params: object(map[string]any{
				"character_name":    characterName(),
				"operation":         operation("Add", "Remove"),
				"augmentation_type": enum("Which list to change.", "cyberware", "bioware"),
				"augmentations":     array("Augmentation names.", str("Name.")),
			}, "character_name", "operation", "augmentation_type", "augmentations"),
			parse: parseAugmentationUpdate,
			bus:   bus,
		},
	}
}

// ---- parsers ----

func parseBasicAttributes(name string, args gjson.Result) ([]character.Update, string, error) {
	updates := args.Get("updates")
	if !updates.IsObject() {
		return nil, "", fmt.Errorf("%w: updates must be an object", ErrInvalidArguments)
	}

	var (
		out []character.Update
		err error
	)
	updates.ForEach(func(key, raw gjson.Result) bool {
		var v character.Value
		if v, err = parseValue(key.String(), raw); err != nil {
			return false
		}
		out = append(out, character.Update{Attribute: key.String(), Op: character.OpModify, Value: v})
		return true
	})
	if err != nil {
		return nil, "", err
	}
	return out, fmt.Sprintf("Basic attributes updated for character '%s'", name), nil
}

func parseSkillUpdates(name string, args gjson.Result) ([]character.Update, string, error) {
	updates := args.Get("updates")
	var out []character.Update

	if raw := updates.Get("skills"); raw.Exists() {
		v, err := parseSkills(raw)
		if err != nil {
			return nil, "", err
		}
		out = append(out, character.Update{Attribute: "skills", Op: character.OpModify, Value: v})
	}
	if raw := updates.Get("knowledge_skills"); raw.Exists() {
		v, err := parseSkillMap(raw, "knowledge_skills")
		if err != nil {
			return nil, "", err
		}
		out = append(out, character.Update{Attribute: "knowledge_skills", Op: character.OpModify, Value: v})
	}
	return out, fmt.Sprintf("Skills updated for character '%s'", name), nil
}

// keyedUpdate 以名称为键的集合（背包、联系人）共用的解析流程
func keyedUpdate[V character.Value](attribute, field, label string, parse func(gjson.Result) (V, error)) updateParser {
	return func(name string, args gjson.Result) ([]character.Update, string, error) {
		op, err := requireOp(args)
		if err != nil {
			return nil, "", err
		}
		v, err := parse(args.Get(field))
		if err != nil {
			return nil, "", err
		}
		u := character.Update{Attribute: attribute, Op: op, Value: v}
		return []character.Update{u}, fmt.Sprintf("%s updated for character '%s'. Operation: %s", label, name, op), nil
	}
}

func parseContactUpdate(name string, args gjson.Result) ([]character.Update, string, error) {
	op, err := requireOp(args)
	if err != nil {
		return nil, "", err
	}
	if op == character.OpRemove {
		return keyedUpdate("contacts", "contacts", "Contacts", parseContactKeys)(name, args)
	}
	return keyedUpdate("contacts", "contacts", "Contacts", parseContacts)(name, args)
}

// addOrRemove 列表类属性只接受 Add 与 Remove
func addOrRemove(args gjson.Result) (character.Op, error) {
	op, err := requireOp(args)
	if err != nil {
		return 0, err
	}
	if op == character.OpModify {
		return 0, fmt.Errorf("%w: only Add and Remove are allowed", character.ErrInvalidOperation)
	}
	return op, nil
}

func parseQualityUpdate(name string, args gjson.Result) ([]character.Update, string, error) {
	op, err := addOrRemove(args)
	if err != nil {
		return nil, "", err
	}
	v, err := parseQualities(args.Get("qualities"))
	if err != nil {
		return nil, "", err
	}
	u := character.Update{Attribute: "qualities", Op: op, Value: v}
	return []character.Update{u}, fmt.Sprintf("Qualities updated for character '%s'. Operation: %s", name, op), nil
}

func parseMatrixUpdate(name string, args gjson.Result) ([]character.Update, string, error) {
	raw := args.Get("matrix_attributes")
	if !raw.Exists() {
		return nil, "", fmt.Errorf("%w: missing matrix_attributes", ErrInvalidArguments)
	}
	v, err := parseMatrix(raw)
	if err != nil {
		return nil, "", err
	}
	u := character.Update{Attribute: "matrix_attributes", Op: character.OpModify, Value: v}
	return []character.Update{u}, fmt.Sprintf("Matrix attributes updated for character '%s'", name), nil
}

func parseAugmentationUpdate(name string, args gjson.Result) ([]character.Update, string, error) {
	op, err := addOrRemove(args)
	if err != nil {
		return nil, "", err
	}
	kind, err := requireString(args, "augmentation_type")
	if err != nil {
		return nil, "", err
	}
	if kind != "cyberware" && kind != "bioware" {
		return nil, "", fmt.Errorf("%w: augmentation_type must be cyberware or bioware", ErrInvalidArguments)
	}
	v, err := parseStrings(args.Get("augmentations"), "augmentations")
	if err != nil {
		return nil, "", err
	}
	u := character.Update{Attribute: kind, Op: op, Value: v}
	return []character.Update{u}, fmt.Sprintf("%s updated for character '%s'. Operation: %s", kind, name, op), nil
}
