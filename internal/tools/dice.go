package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/sjson"

	"sharad-cli/internal/dice"
	"sharad-cli/internal/game"
)

// DiceRollTool 为某个角色掷一次 属性+技能 骰池。
//
// 所有失败（找不到角色、limit_type 非法、edge 名称非法）都以文本形式返回给
// assistant，不会中断回合。
type DiceRollTool struct {
	src dice.Source
}

func NewDiceRollTool(src dice.Source) *DiceRollTool {
	if src == nil {
		src = dice.NewRandomSource()
	}
	return &DiceRollTool{src: src}
}

func (t *DiceRollTool) Name() string { return "perform_dice_roll" }

func (t *DiceRollTool) Description() string {
	return `Roll an attribute + skill dice pool for a character.

Each 5 or 6 is a hit; every 6 adds another die. Hits are capped by the chosen
limit. More than half the original pool
showing 1 is a glitch, a glitch with no hits is a critical glitch.
Returns the dice, hits and success/glitch flags as JSON.`
}

func (t *DiceRollTool) Parameters() map[string]any {
	return object(map[string]any{
		"character_name": characterName(),
		"attribute":      str("Attribute name, e.g. agility."),
		"skill":          str("Skill name, e.g. Pistols. Unknown skills count as 0."),
		"limit_type":     enum("Which limit caps the hits.", "physical", "mental", "social"),
		"threshold":      integer("Hits needed to succeed. Omit for an open test."),
		"edge_action":    enum("Optional edge use.", "RerollFailures", "AddExtraDice", "PushTheLimit"),
		"extra_dice":     integer("Dice added by AddExtraDice."),
	}, "character_name", "attribute", "skill", "limit_type")
}

func (t *DiceRollTool) Execute(ctx context.Context, call Call) (*ToolResult, error) {
	args, err := call.Args()
	if err != nil {
		return nil, err
	}

	name, err := requireString(args, "character_name")
	if err != nil {
		return nil, err
	}
	attribute, err := requireString(args, "attribute")
	if err != nil {
		return nil, err
	}
	skill, err := requireString(args, "skill")
	if err != nil {
		return nil, err
	}
	limitType, err := requireString(args, "limit_type")
	if err != nil {
		return nil, err
	}
	threshold, err := optionalInt(args, "threshold")
	if err != nil {
		return nil, err
	}
	extra, err := optionalInt(args, "extra_dice")
	if err != nil {
		return nil, err
	}

	sheet, found := call.State.FindCharacter(name)
	if !found {
		return nil, fmt.Errorf("%w: %s", game.ErrCharacterNotFound, name)
	}

	limit, err := sheet.Limit(limitType)
	if err != nil {
		return nil, err
	}
	edge, err := dice.ParseEdgeAction(optionalString(args, "edge_action", ""), extra)
	if err != nil {
		return nil, err
	}

	req := dice.Request{
		Pool:      sheet.DicePool(attribute, skill),
		Limit:     &limit,
		Threshold: threshold,
		Edge:      edge,
	}
	res := dice.Roll(t.src, req)

	out, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode roll: %w", err)
	}
	body, err := decorateRoll(string(out), req)
	if err != nil {
		return nil, err
	}
	return ok(body), nil
}

// decorateRoll 在结果 JSON 上附加骰池与上限，便于 assistant 叙述
func decorateRoll(body string, req dice.Request) (string, error) {
	var err error
	if body, err = sjson.Set(body, "pool", req.Pool); err != nil {
		return "", err
	}
	if body, err = sjson.Set(body, "limit", *req.Limit); err != nil {
		return "", err
	}
	if req.Edge != nil {
		if body, err = sjson.Set(body, "edge_action", req.Edge.Kind.String()); err != nil {
			return "", err
		}
	}
	return body, nil
}
