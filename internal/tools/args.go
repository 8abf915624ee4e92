package tools

import (
	"fmt"
	"math"

	"github.com/tidwall/gjson"

	"sharad-cli/internal/character"
)

// ---- scalar fields ----

func requireString(obj gjson.Result, field string) (string, error) {
	v := obj.Get(field)
	if v.Type != gjson.String {
		return "", fmt.Errorf("%w: missing or invalid %s", ErrInvalidArguments, field)
	}
	return v.String(), nil
}

func optionalString(obj gjson.Result, field, fallback string) string {
	v := obj.Get(field)
	if v.Type != gjson.String {
		return fallback
	}
	return v.String()
}

// toUint 校验非负整数且不超过 limit
func toUint(v gjson.Result, field string, limit uint64) (uint64, error) {
	if v.Type != gjson.Number {
		return 0, fmt.Errorf("%w: missing or invalid %s", ErrInvalidArguments, field)
	}
	if v.Num < 0 || v.Num != math.Trunc(v.Num) {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", ErrInvalidArguments, field)
	}
	if v.Num > float64(limit) {
		return 0, fmt.Errorf("%w: %s out of range", ErrInvalidArguments, field)
	}
	return v.Uint(), nil
}

func requireUint8(obj gjson.Result, field string) (uint8, error) {
	n, err := toUint(obj.Get(field), field, math.MaxUint8)
	return uint8(n), err
}

// optionalUint8 字段缺失或为 null 时返回 nil
func optionalUint8(obj gjson.Result, field string) (*uint8, error) {
	v := obj.Get(field)
	if !v.Exists() || v.Type == gjson.Null {
		return nil, nil
	}
	n, err := toUint(v, field, math.MaxUint8)
	if err != nil {
		return nil, err
	}
	u := uint8(n)
	return &u, nil
}

func optionalInt(obj gjson.Result, field string) (*int, error) {
	v := obj.Get(field)
	if !v.Exists() || v.Type == gjson.Null {
		return nil, nil
	}
	n, err := toUint(v, field, math.MaxUint8)
	if err != nil {
		return nil, err
	}
	i := int(n)
	return &i, nil
}

func requireBool(obj gjson.Result, field string) (bool, error) {
	v := obj.Get(field)
	if v.Type != gjson.True && v.Type != gjson.False {
		return false, fmt.Errorf("%w: missing or invalid %s", ErrInvalidArguments, field)
	}
	return v.Bool(), nil
}

func requireOp(obj gjson.Result) (character.Op, error) {
	name, err := requireString(obj, "operation")
	if err != nil {
		return 0, err
	}
	return character.ParseOp(name)
}

// ---- composite values ----

// parseValue 按属性对应的变体解析 JSON 值
func parseValue(attribute string, v gjson.Result) (character.Value, error) {
	kind, known := character.KindOf(attribute)
	if !known {
		return nil, fmt.Errorf("%w: %s", character.ErrUnknownAttribute, attribute)
	}

	switch kind {
	case character.KindString:
		if v.Type != gjson.String {
			return nil, fmt.Errorf("%w: %s must be a string", ErrInvalidArguments, attribute)
		}
		return character.String(v.String()), nil
	case character.KindRace:
		race, err := character.ParseRace(v.String())
		if err != nil {
			return nil, err
		}
		return race, nil
	case character.KindU8:
		n, err := toUint(v, attribute, math.MaxUint8)
		if err != nil {
			return nil, err
		}
		return character.U8(n), nil
	case character.KindOptionU8:
		if v.Type == gjson.Null {
			return character.OptionU8{}, nil
		}
		n, err := toUint(v, attribute, math.MaxUint8)
		if err != nil {
			return nil, err
		}
		u := uint8(n)
		return character.OptionU8{Value: &u}, nil
	case character.KindNuyen:
		n, err := toUint(v, attribute, math.MaxUint32)
		if err != nil {
			return nil, err
		}
		return character.Nuyen(n), nil
	case character.KindSkills:
		return parseSkills(v)
	case character.KindSkillMap:
		return parseSkillMap(v, attribute)
	case character.KindItems:
		return parseItems(v)
	case character.KindContacts:
		return parseContacts(v)
	case character.KindQualities:
		return parseQualities(v)
	case character.KindStrings:
		return parseStrings(v, attribute)
	case character.KindMatrix:
		return parseMatrix(v)
	default:
		return nil, fmt.Errorf("%w: unsupported attribute %s", ErrInvalidArguments, attribute)
	}
}

// parseSkillMap 接受 {"Pistols": 3} 或 [{"name":"Pistols","rating":3}] 两种形式
func parseSkillMap(v gjson.Result, field string) (character.SkillMap, error) {
	out := character.SkillMap{}
	if !v.Exists() || v.Type == gjson.Null {
		return out, nil
	}

	var err error
	switch {
	case v.IsObject():
		v.ForEach(func(key, rating gjson.Result) bool {
			var n uint64
			n, err = toUint(rating, field+"."+key.String(), math.MaxUint8)
			out[key.String()] = uint8(n)
			return err == nil
		})
	case v.IsArray():
		v.ForEach(func(_, skill gjson.Result) bool {
			var name string
			var rating uint8
			if name, err = requireString(skill, "name"); err != nil {
				return false
			}
			if rating, err = requireUint8(skill, "rating"); err != nil {
				return false
			}
			out[name] = rating
			return true
		})
	default:
		err = fmt.Errorf("%w: %s must be an object or array", ErrInvalidArguments, field)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func parseSkills(v gjson.Result) (character.Skills, error) {
	if !v.IsObject() {
		return character.Skills{}, fmt.Errorf("%w: skills must be an object", ErrInvalidArguments)
	}
	var (
		s   character.Skills
		err error
	)
	if s.Combat, err = parseSkillMap(v.Get("combat"), "combat"); err != nil {
		return s, err
	}
	if s.Physical, err = parseSkillMap(v.Get("physical"), "physical"); err != nil {
		return s, err
	}
	if s.Social, err = parseSkillMap(v.Get("social"), "social"); err != nil {
		return s, err
	}
	if s.Technical, err = parseSkillMap(v.Get("technical"), "technical"); err != nil {
		return s, err
	}
	return s, nil
}

// parseItem quantity 缺省为 1，description 缺省为空串
func parseItem(v gjson.Result, key string) (character.Item, error) {
	name := optionalString(v, "name", key)
	if name == "" {
		return character.Item{}, fmt.Errorf("%w: item without name", ErrInvalidArguments)
	}
	item := character.Item{Name: name, Quantity: 1, Description: optionalString(v, "description", "")}
	if q := v.Get("quantity"); q.Exists() && q.Type != gjson.Null {
		n, err := toUint(q, "quantity", math.MaxUint32)
		if err != nil {
			return character.Item{}, err
		}
		item.Quantity = uint32(n)
	}
	return item, nil
}

// parseItems 接受单个物品、物品数组或以名称为键的对象
func parseItems(v gjson.Result) (character.Items, error) {
	out := character.Items{}
	var err error
	switch {
	case v.IsObject() && v.Get("name").Type == gjson.String:
		var it character.Item
		if it, err = parseItem(v, ""); err == nil {
			out[it.Name] = it
		}
	case v.IsObject():
		v.ForEach(func(key, raw gjson.Result) bool {
			var it character.Item
			if it, err = parseItem(raw, key.String()); err != nil {
				return false
			}
			out[key.String()] = it
			return true
		})
	case v.IsArray():
		v.ForEach(func(_, raw gjson.Result) bool {
			var it character.Item
			if it, err = parseItem(raw, ""); err != nil {
				return false
			}
			out[it.Name] = it
			return true
		})
	default:
		err = fmt.Errorf("%w: items must be an object or array", ErrInvalidArguments)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func parseContact(v gjson.Result, key string) (character.Contact, error) {
	name := optionalString(v, "name", key)
	if name == "" {
		return character.Contact{}, fmt.Errorf("%w: contact without name", ErrInvalidArguments)
	}
	c := character.Contact{Name: name, Description: optionalString(v, "description", "")}
	var err error
	if c.Loyalty, err = requireUint8(v, "loyalty"); err != nil {
		return c, err
	}
	if c.Connection, err = requireUint8(v, "connection"); err != nil {
		return c, err
	}
	return c, nil
}

// parseContacts 接受联系人数组或以姓名为键的对象；Remove 时只需要键
func parseContacts(v gjson.Result) (character.Contacts, error) {
	out := character.Contacts{}
	var err error
	switch {
	case v.IsObject():
		v.ForEach(func(key, raw gjson.Result) bool {
			var c character.Contact
			if c, err = parseContact(raw, key.String()); err != nil {
				return false
			}
			out[key.String()] = c
			return true
		})
	case v.IsArray():
		v.ForEach(func(_, raw gjson.Result) bool {
			var c character.Contact
			if c, err = parseContact(raw, ""); err != nil {
				return false
			}
			out[c.Name] = c
			return true
		})
	default:
		err = fmt.Errorf("%w: contacts must be an object or array", ErrInvalidArguments)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// parseContactKeys Remove 联系人时只关心名称，允许传字符串数组
func parseContactKeys(v gjson.Result) (character.Contacts, error) {
	if !v.IsArray() {
		return parseContacts(v)
	}
	out := character.Contacts{}
	for _, raw := range v.Array() {
		switch {
		case raw.Type == gjson.String:
			out[raw.String()] = character.Contact{Name: raw.String()}
		case raw.IsObject() && raw.Get("name").Type == gjson.String:
			out[raw.Get("name").String()] = character.Contact{Name: raw.Get("name").String()}
		default:
			return nil, fmt.Errorf("%w: contact without name", ErrInvalidArguments)
		}
	}
	return out, nil
}

func parseQualities(v gjson.Result) (character.Qualities, error) {
	if !v.IsArray() {
		return nil, fmt.Errorf("%w: qualities must be an array", ErrInvalidArguments)
	}
	out := make(character.Qualities, 0, len(v.Array()))
	for _, raw := range v.Array() {
		name, err := requireString(raw, "name")
		if err != nil {
			return nil, err
		}
		positive, err := requireBool(raw, "positive")
		if err != nil {
			return nil, err
		}
		out = append(out, character.Quality{Name: name, Positive: positive})
	}
	return out, nil
}

func parseStrings(v gjson.Result, field string) (character.Strings, error) {
	if !v.IsArray() {
		return nil, fmt.Errorf("%w: %s must be an array of strings", ErrInvalidArguments, field)
	}
	out := make(character.Strings, 0, len(v.Array()))
	for _, raw := range v.Array() {
		if raw.Type != gjson.String {
			return nil, fmt.Errorf("%w: %s must be an array of strings", ErrInvalidArguments, field)
		}
		out = append(out, raw.String())
	}
	return out, nil
}

func parseMatrix(v gjson.Result) (character.Matrix, error) {
	if !v.Exists() || v.Type == gjson.Null {
		return character.Matrix{}, nil
	}
	if !v.IsObject() {
		return character.Matrix{}, fmt.Errorf("%w: matrix_attributes must be an object", ErrInvalidArguments)
	}
	var (
		m   character.MatrixAttributes
		err error
	)
	if m.Attack, err = requireUint8(v, "attack"); err != nil {
		return character.Matrix{}, err
	}
	if m.Sleaze, err = requireUint8(v, "sleaze"); err != nil {
		return character.Matrix{}, err
	}
	if m.DataProcessing, err = requireUint8(v, "data_processing"); err != nil {
		return character.Matrix{}, err
	}
	if m.Firewall, err = requireUint8(v, "firewall"); err != nil {
		return character.Matrix{}, err
	}
	return character.Matrix{Value: &m}, nil
}
