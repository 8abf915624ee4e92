package character

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
)

var (
	ErrUnknownAttribute     = errors.New("unknown attribute")
	ErrTypeMismatch         = errors.New("type mismatch")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrInvalidOperation     = errors.New("invalid operation")
)

// Op 更新操作
type Op uint8

const (
	OpAdd Op = iota + 1
	OpRemove
	OpModify
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "Add"
	case OpRemove:
		return "Remove"
	case OpModify:
		return "Modify"
	default:
		return fmt.Sprintf("Op(%d)", uint8(o))
	}
}

func (o Op) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// ParseOp 解析操作名，只接受 "Add"、"Remove"、"Modify" 三个字面值（区分大小写）。
func ParseOp(s string) (Op, error) {
	switch s {
	case "Add":
		return OpAdd, nil
	case "Remove":
		return OpRemove, nil
	case "Modify":
		return OpModify, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidOperation, s)
	}
}

// Update 作用于某个属性的一次更新
type Update struct {
	Attribute string `json:"attribute"`
	Op        Op     `json:"operation"`
	Value     Value  `json:"value"`
}

// UpdateError 描述被拒绝的更新，Err 为本包的哨兵错误之一。
type UpdateError struct {
	Attribute string
	Op        Op
	Err       error
	Detail    string
}

func (e *UpdateError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Op, e.Attribute, e.Err)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *UpdateError) Unwrap() error { return e.Err }

// Apply 把一次更新作用到角色上。
//
// 属性名先在静态映射中查出期望的 Value 变体，与实际变体不一致时返回 ErrTypeMismatch；
// 操作对该变体未定义时返回 ErrUnsupportedOperation。所有校验都在修改之前完成，
// 出错时角色保持原样。
//
// 语义按变体划分：
//   - 标量（String、U8、OptionU8、Nuyen、Race）：只支持 Modify，直接替换
//   - 映射（SkillMap、Items、Contacts）：Add 与 Modify 按键覆盖或插入，Remove 删除出现的键，缺失的键忽略
//   - 列表（Qualities、Strings）：Add 追加（允许重复），Remove 对每个元素删除第一个相等项，Modify 整体替换
//   - Skills 与 Matrix：只支持 Modify，整体替换
//
// 数值只校验变体自身的取值域（U8 为 0-255，Nuyen 为 uint32），不检查种族上限；
// 需要时由调用方执行 Sheet.ClampToRace。
// Apply 不会重新计算派生属性，需要时由调用方执行 Sheet.RecomputeDerived。
func Apply(s *Sheet, u Update) error {
	want, ok := attributeKinds[u.Attribute]
	if !ok {
		return &UpdateError{Attribute: u.Attribute, Op: u.Op, Err: ErrUnknownAttribute}
	}
	if u.Value == nil {
		return &UpdateError{Attribute: u.Attribute, Op: u.Op, Err: ErrTypeMismatch,
			Detail: fmt.Sprintf("want %s, got nil", want)}
	}
	if got := u.Value.Kind(); got != want {
		return &UpdateError{Attribute: u.Attribute, Op: u.Op, Err: ErrTypeMismatch,
			Detail: fmt.Sprintf("want %s, got %s", want, got)}
	}
	if !supports(want, u.Op) {
		return &UpdateError{Attribute: u.Attribute, Op: u.Op, Err: ErrUnsupportedOperation,
			Detail: want.String()}
	}

	switch v := u.Value.(type) {
	case String:
		*stringField(s, u.Attribute) = string(v)
	case U8:
		*u8Field(s, u.Attribute) = uint8(v)
	case OptionU8:
		*optionField(s, u.Attribute) = cloneRef(v.Value)
	case Nuyen:
		s.Nuyen = v
	case Race:
		s.Race = v
	case Skills:
		s.Skills = Skills{
			Combat:    orEmpty(maps.Clone(v.Combat)),
			Physical:  orEmpty(maps.Clone(v.Physical)),
			Social:    orEmpty(maps.Clone(v.Social)),
			Technical: orEmpty(maps.Clone(v.Technical)),
		}
	case SkillMap:
		s.KnowledgeSkills = applyMap(s.KnowledgeSkills, v, u.Op)
	case Items:
		s.Inventory = applyMap(s.Inventory, withItemNames(v), u.Op)
	case Contacts:
		s.Contacts = applyMap(s.Contacts, withContactNames(v), u.Op)
	case Qualities:
		s.Qualities = applyList(s.Qualities, v, u.Op)
	case Strings:
		field := stringsField(s, u.Attribute)
		*field = applyList(*field, v, u.Op)
	case Matrix:
		s.MatrixAttributes = cloneRef(v.Value)
	default:
		return &UpdateError{Attribute: u.Attribute, Op: u.Op, Err: ErrTypeMismatch,
			Detail: fmt.Sprintf("unhandled value %T", v)}
	}
	return nil
}

// supports 变体支持的操作集合
func supports(k Kind, op Op) bool {
	switch k {
	case KindSkillMap, KindItems, KindContacts, KindQualities, KindStrings:
		return op == OpAdd || op == OpRemove || op == OpModify
	default:
		return op == OpModify
	}
}

func applyMap[M ~map[string]V, V any](dst, payload M, op Op) M {
	if dst == nil {
		dst = M{}
	}
	switch op {
	case OpAdd, OpModify:
		maps.Copy(dst, payload)
	case OpRemove:
		for k := range payload {
			delete(dst, k)
		}
	}
	return dst
}

func applyList[S ~[]E, E any](dst, payload S, op Op) S {
	switch op {
	case OpAdd:
		return append(dst, payload...)
	case OpRemove:
		for _, want := range payload {
			idx := slices.IndexFunc(dst, func(have E) bool {
				return reflect.DeepEqual(have, want)
			})
			if idx >= 0 {
				dst = slices.Delete(dst, idx, idx+1)
			}
		}
		return dst
	default:
		return slices.Clone(payload)
	}
}

func withItemNames(items Items) Items {
	out := make(Items, len(items))
	for k, it := range items {
		if it.Name == "" {
			it.Name = k
		}
		out[k] = it
	}
	return out
}

func withContactNames(contacts Contacts) Contacts {
	out := make(Contacts, len(contacts))
	for k, c := range contacts {
		if c.Name == "" {
			c.Name = k
		}
		out[k] = c
	}
	return out
}

// ---- field table ----

func stringField(s *Sheet, attribute string) *string {
	switch attribute {
	case "name":
		return &s.Name
	case "gender":
		return &s.Gender
	case "backstory":
		return &s.Backstory
	default:
		return &s.Lifestyle
	}
}

func u8Field(s *Sheet, attribute string) *uint8 {
	a := &s.Attributes
	switch attribute {
	case "body":
		return &a.Body
	case "agility":
		return &a.Agility
	case "reaction":
		return &a.Reaction
	case "strength":
		return &a.Strength
	case "willpower":
		return &a.Willpower
	case "logic":
		return &a.Logic
	case "intuition":
		return &a.Intuition
	case "charisma":
		return &a.Charisma
	default:
		return &a.Edge
	}
}

func optionField(s *Sheet, attribute string) **uint8 {
	if attribute == "resonance" {
		return &s.Resonance
	}
	return &s.Magic
}

func stringsField(s *Sheet, attribute string) *Strings {
	if attribute == "bioware" {
		return &s.Bioware
	}
	return &s.Cyberware
}
