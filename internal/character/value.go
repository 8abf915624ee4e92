package character

import (
	"encoding/json"
	"fmt"
)

// Kind 标识 Value 的具体变体
type Kind uint8

const (
	KindString Kind = iota + 1
	KindU8
	KindOptionU8
	KindNuyen
	KindRace
	KindSkills
	KindSkillMap
	KindItems
	KindContacts
	KindQualities
	KindStrings
	KindMatrix
)

var kindNames = map[Kind]string{
	KindString:    "String",
	KindU8:        "U8",
	KindOptionU8:  "OptionU8",
	KindNuyen:     "Nuyen",
	KindRace:      "Race",
	KindSkills:    "Skills",
	KindSkillMap:  "SkillMap",
	KindItems:     "Items",
	KindContacts:  "Contacts",
	KindQualities: "Qualities",
	KindStrings:   "Strings",
	KindMatrix:    "Matrix",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Value 一次更新携带的数据。变体集合是封闭的：只有本包内的类型实现它。
type Value interface {
	Kind() Kind
	sealed()
}

type (
	// String 文本字段：name、gender、backstory、lifestyle
	String string
	// U8 基础属性
	U8 uint8
	// Nuyen 金钱
	Nuyen uint32
	// SkillMap 技能名到等级
	SkillMap map[string]uint8
	// Items 以物品名为键的背包
	Items map[string]Item
	// Contacts 以联系人姓名为键
	Contacts map[string]Contact
	// Qualities 正面或负面特质，允许重复
	Qualities []Quality
	// Strings 改造件名称列表（cyberware / bioware）
	Strings []string
)

// OptionU8 可缺省的数值（magic、resonance），Value 为 nil 表示没有该属性。
type OptionU8 struct {
	Value *uint8
}

// Skills 四类主动技能
type Skills struct {
	Combat    SkillMap `json:"combat"`
	Physical  SkillMap `json:"physical"`
	Social    SkillMap `json:"social"`
	Technical SkillMap `json:"technical"`
}

// Matrix 可缺省的矩阵属性
type Matrix struct {
	Value *MatrixAttributes
}

func (String) Kind() Kind    { return KindString }
func (U8) Kind() Kind        { return KindU8 }
func (OptionU8) Kind() Kind  { return KindOptionU8 }
func (Nuyen) Kind() Kind     { return KindNuyen }
func (Race) Kind() Kind      { return KindRace }
func (Skills) Kind() Kind    { return KindSkills }
func (SkillMap) Kind() Kind  { return KindSkillMap }
func (Items) Kind() Kind     { return KindItems }
func (Contacts) Kind() Kind  { return KindContacts }
func (Qualities) Kind() Kind { return KindQualities }
func (Strings) Kind() Kind   { return KindStrings }
func (Matrix) Kind() Kind    { return KindMatrix }

func (String) sealed()    {}
func (U8) sealed()        {}
func (OptionU8) sealed()  {}
func (Nuyen) sealed()     {}
func (Race) sealed()      {}
func (Skills) sealed()    {}
func (SkillMap) sealed()  {}
func (Items) sealed()     {}
func (Contacts) sealed()  {}
func (Qualities) sealed() {}
func (Strings) sealed()   {}
func (Matrix) sealed()    {}

func (o OptionU8) MarshalJSON() ([]byte, error) { return json.Marshal(o.Value) }
func (m Matrix) MarshalJSON() ([]byte, error)   { return json.Marshal(m.Value) }

// attributeKinds 属性名到期望变体的静态映射，Apply 在修改前据此校验。
var attributeKinds = map[string]Kind{
	"name":      KindString,
	"gender":    KindString,
	"backstory": KindString,
	"lifestyle": KindString,
	"race":      KindRace,

	"body":      KindU8,
	"agility":   KindU8,
	"reaction":  KindU8,
	"strength":  KindU8,
	"willpower": KindU8,
	"logic":     KindU8,
	"intuition": KindU8,
	"charisma":  KindU8,
	"edge":      KindU8,

	"magic":     KindOptionU8,
	"resonance": KindOptionU8,
	"nuyen":     KindNuyen,

	"skills":           KindSkills,
	"knowledge_skills": KindSkillMap,
	"inventory":        KindItems,
	"contacts":         KindContacts,
	"qualities":        KindQualities,
	"cyberware":        KindStrings,
	"bioware":          KindStrings,

	"matrix_attributes": KindMatrix,
}

// KindOf 返回属性名对应的变体，未知属性返回 false。
func KindOf(attribute string) (Kind, bool) {
	k, ok := attributeKinds[attribute]
	return k, ok
}
