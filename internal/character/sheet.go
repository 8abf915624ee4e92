package character

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"golang.org/x/text/cases"
)

var (
	ErrInvalidRace      = errors.New("invalid race")
	ErrInvalidLimitType = errors.New("invalid limit type")
)

// ---- Race ----

// Race 角色种族
type Race string

const (
	Human Race = "Human"
	Elf   Race = "Elf"
	Dwarf Race = "Dwarf"
	Ork   Race = "Ork"
	Troll Race = "Troll"
)

// Races 按固定顺序列出所有种族
var Races = []Race{Human, Elf, Dwarf, Ork, Troll}

// ParseRace 解析种族名称，大小写必须完全一致。
func ParseRace(s string) (Race, error) {
	r := Race(s)
	if !slices.Contains(Races, r) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRace, s)
	}
	return r, nil
}

func (r *Race) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRace(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ---- Sheet ----

// Attributes 九项基础属性
type Attributes struct {
	Body      uint8 `json:"body"`
	Agility   uint8 `json:"agility"`
	Reaction  uint8 `json:"reaction"`
	Strength  uint8 `json:"strength"`
	Willpower uint8 `json:"willpower"`
	Logic     uint8 `json:"logic"`
	Intuition uint8 `json:"intuition"`
	Charisma  uint8 `json:"charisma"`
	Edge      uint8 `json:"edge"`
}

// Initiative 先攻值：基础值 + 先攻骰数量。
// JSON 中既可以是 {"base":8,"dice":1} 也可以是 [8,1]。
type Initiative struct {
	Base uint8 `json:"base"`
	Dice uint8 `json:"dice"`
}

func (i *Initiative) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var pair []int
		if err := json.Unmarshal(data, &pair); err != nil {
			return err
		}
		if len(pair) != 2 {
			return fmt.Errorf("initiative: expected 2 values, got %d", len(pair))
		}
		i.Base, i.Dice = sat(pair[0]), sat(pair[1])
		return nil
	}

	type plain Initiative
	return json.Unmarshal(data, (*plain)(i))
}

type Limits struct {
	Physical uint8 `json:"physical"`
	Mental   uint8 `json:"mental"`
	Social   uint8 `json:"social"`
}

type Monitors struct {
	Physical uint8 `json:"physical"`
	Stun     uint8 `json:"stun"`
}

type Essence struct {
	Current float32 `json:"current"`
	Max     float32 `json:"max"`
}

// Derived 由基础属性推导出的数值，见 RecomputeDerived
type Derived struct {
	Initiative Initiative `json:"initiative"`
	Limits     Limits     `json:"limits"`
	Monitors   Monitors   `json:"monitors"`
	Essence    Essence    `json:"essence"`
	EdgePoints uint8      `json:"edge_points"`
	Armor      uint8      `json:"armor"`
}

type Item struct {
	Name        string `json:"name"`
	Quantity    uint32 `json:"quantity"`
	Description string `json:"description"`
}

type Contact struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Loyalty     uint8  `json:"loyalty"`
	Connection  uint8  `json:"connection"`
}

type Quality struct {
	Name     string `json:"name"`
	Positive bool   `json:"positive"`
}

type MatrixAttributes struct {
	Attack         uint8 `json:"attack"`
	Sleaze         uint8 `json:"sleaze"`
	DataProcessing uint8 `json:"data_processing"`
	Firewall       uint8 `json:"firewall"`
}

// Sheet 一个角色的完整数据。Name 在同一局游戏的角色列表中唯一。
type Sheet struct {
	Name      string `json:"name"`
	Race      Race   `json:"race"`
	Gender    string `json:"gender"`
	Backstory string `json:"backstory"`
	Main      bool   `json:"main"`

	Attributes Attributes `json:"attributes"`
	Magic      *uint8     `json:"magic,omitempty"`
	Resonance  *uint8     `json:"resonance,omitempty"`

	Derived Derived `json:"derived_attributes"`

	Skills          Skills   `json:"skills"`
	KnowledgeSkills SkillMap `json:"knowledge_skills"`

	Nuyen     Nuyen     `json:"nuyen"`
	Lifestyle string    `json:"lifestyle"`
	Contacts  Contacts  `json:"contacts"`
	Qualities Qualities `json:"qualities"`
	Cyberware Strings   `json:"cyberware"`
	Bioware   Strings   `json:"bioware"`
	Inventory Items     `json:"inventory"`

	MatrixAttributes *MatrixAttributes `json:"matrix_attributes,omitempty"`
}

// Draft 创建角色所需的输入，由 NewSheet 补全派生数值。
type Draft struct {
	Name      string
	Race      Race
	Gender    string
	Backstory string
	Main      bool

	Attributes Attributes
	Magic      *uint8
	Resonance  *uint8

	Skills          Skills
	KnowledgeSkills SkillMap
	Qualities       Qualities
	Nuyen           Nuyen
	Inventory       Items
	Contacts        Contacts
}

// NewSheet 根据 Draft 创建角色：应用种族修正，再计算派生属性。
func NewSheet(d Draft) *Sheet {
	s := &Sheet{
		Name:            d.Name,
		Race:            d.Race,
		Gender:          d.Gender,
		Backstory:       d.Backstory,
		Main:            d.Main,
		Attributes:      d.Attributes,
		Magic:           d.Magic,
		Resonance:       d.Resonance,
		Skills:          d.Skills.normalized(),
		KnowledgeSkills: orEmpty(d.KnowledgeSkills),
		Nuyen:           d.Nuyen,
		Lifestyle:       "Street",
		Contacts:        orEmpty(d.Contacts),
		Qualities:       d.Qualities,
		Cyberware:       Strings{},
		Bioware:         Strings{},
		Inventory:       orEmpty(d.Inventory),
		Derived: Derived{
			Essence: Essence{Current: 6, Max: 6},
		},
	}
	if s.Qualities == nil {
		s.Qualities = Qualities{}
	}

	s.ApplyRaceModifiers()
	s.Derived.EdgePoints = s.Attributes.Edge
	s.RecomputeDerived()
	return s
}

// Dummy 角色创建参数无法解析时使用的替补角色。
func Dummy() *Sheet {
	return NewSheet(Draft{
		Name:      "Dummy Character",
		Race:      Human,
		Gender:    "Unspecified",
		Backstory: "This is a dummy character created as a fallback.",
		Attributes: Attributes{
			Body: 3, Agility: 3, Reaction: 3, Strength: 3, Willpower: 3,
			Logic: 3, Intuition: 3, Charisma: 3, Edge: 3,
		},
		Skills: Skills{
			Combat:    SkillMap{"Unarmed Combat": 1, "Pistols": 1},
			Physical:  SkillMap{"Running": 1, "Sneaking": 1},
			Social:    SkillMap{"Etiquette": 1, "Negotiation": 1},
			Technical: SkillMap{"Computer": 1, "First Aid": 1},
		},
		Nuyen: 5000,
	})
}

// ApplyRaceModifiers 按种族调整基础属性，并把属性限制在种族上限内。
func (s *Sheet) ApplyRaceModifiers() {
	a := &s.Attributes
	switch s.Race {
	case Human:
		a.Edge = clamp(int(a.Edge), 2, 7)
	case Elf:
		a.Agility = bonus(a.Agility, 1, 7)
		a.Charisma = bonus(a.Charisma, 2, 8)
	case Dwarf:
		a.Body = bonus(a.Body, 2, 8)
		a.Agility = min(a.Agility, 5)
		a.Reaction = min(a.Reaction, 5)
		a.Strength = bonus(a.Strength, 2, 8)
		a.Willpower = bonus(a.Willpower, 1, 7)
	case Ork:
		a.Body = bonus(a.Body, 3, 9)
		a.Strength = bonus(a.Strength, 2, 8)
		a.Logic = min(a.Logic, 5)
		a.Charisma = min(a.Charisma, 5)
	case Troll:
		a.Body = bonus(a.Body, 4, 10)
		a.Agility = min(a.Agility, 5)
		a.Strength = bonus(a.Strength, 4, 10)
		a.Logic = min(a.Logic, 5)
		a.Intuition = min(a.Intuition, 5)
		a.Charisma = min(a.Charisma, 4)
	}
}

// naturalMax 各种族基础属性的天然上限
var naturalMax = map[Race]Attributes{
	Human: {Body: 6, Agility: 6, Reaction: 6, Strength: 6, Willpower: 6, Logic: 6, Intuition: 6, Charisma: 6, Edge: 7},
	Elf:   {Body: 6, Agility: 7, Reaction: 6, Strength: 6, Willpower: 6, Logic: 6, Intuition: 6, Charisma: 8, Edge: 6},
	Dwarf: {Body: 8, Agility: 5, Reaction: 5, Strength: 8, Willpower: 7, Logic: 6, Intuition: 6, Charisma: 6, Edge: 6},
	Ork:   {Body: 9, Agility: 6, Reaction: 6, Strength: 8, Willpower: 6, Logic: 5, Intuition: 6, Charisma: 5, Edge: 6},
	Troll: {Body: 10, Agility: 5, Reaction: 6, Strength: 10, Willpower: 6, Logic: 5, Intuition: 5, Charisma: 4, Edge: 6},
}

// augmentBonus 增强（义体、法术等）最多在天然上限之上再加的点数
const augmentBonus = 4

// ClampToRace 把基础属性限制在种族的增强上限内：天然上限加 augmentBonus，Edge 不可增强。
// 未知种族按 Human 处理。
func (s *Sheet) ClampToRace() {
	c, ok := naturalMax[s.Race]
	if !ok {
		c = naturalMax[Human]
	}

	a := &s.Attributes
	a.Body = min(a.Body, c.Body+augmentBonus)
	a.Agility = min(a.Agility, c.Agility+augmentBonus)
	a.Reaction = min(a.Reaction, c.Reaction+augmentBonus)
	a.Strength = min(a.Strength, c.Strength+augmentBonus)
	a.Willpower = min(a.Willpower, c.Willpower+augmentBonus)
	a.Logic = min(a.Logic, c.Logic+augmentBonus)
	a.Intuition = min(a.Intuition, c.Intuition+augmentBonus)
	a.Charisma = min(a.Charisma, c.Charisma+augmentBonus)
	a.Edge = min(a.Edge, c.Edge)
}

// RecomputeDerived 根据当前基础属性重新计算先攻、伤害监视器和三项上限。
// 属性更新后由状态持有方显式调用，Apply 本身不会触发。
func (s *Sheet) RecomputeDerived() {
	a := s.Attributes
	d := &s.Derived

	d.Initiative = Initiative{Base: sat(int(a.Reaction) + int(a.Intuition)), Dice: 1}
	d.Monitors.Physical = sat(8 + (int(a.Body)+1)/2)
	d.Monitors.Stun = sat(8 + (int(a.Willpower)+1)/2)
	d.Limits.Physical = ceilThird(int(a.Strength)*2 + int(a.Body) + int(a.Reaction))
	d.Limits.Mental = ceilThird(int(a.Logic)*2 + int(a.Intuition) + int(a.Willpower))
	d.Limits.Social = ceilThird(int(a.Charisma)*2 + int(a.Willpower) + int(d.Essence.Current))
}

// ---- Lookups ----

// attributeRating 按名称（忽略大小写）读取属性值，未知名称返回 0。
func (s *Sheet) attributeRating(name string) int {
	a := s.Attributes
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "body":
		return int(a.Body)
	case "agility":
		return int(a.Agility)
	case "reaction":
		return int(a.Reaction)
	case "strength":
		return int(a.Strength)
	case "willpower":
		return int(a.Willpower)
	case "logic":
		return int(a.Logic)
	case "intuition":
		return int(a.Intuition)
	case "charisma":
		return int(a.Charisma)
	case "magic":
		return int(deref(s.Magic))
	case "resonance":
		return int(deref(s.Resonance))
	default:
		return 0
	}
}

// SkillRating 在四类技能中查找技能等级。
// 优先精确匹配，找不到时按 Unicode case folding 比较，仍找不到返回 0。
func (s *Sheet) SkillRating(skill string) int {
	categories := s.Skills.categories()
	for _, m := range categories {
		if v, ok := m[skill]; ok {
			return int(v)
		}
	}

	fold := cases.Fold()
	want := fold.String(strings.TrimSpace(skill))
	for _, m := range categories {
		for _, name := range slices.Sorted(maps.Keys(m)) {
			if fold.String(name) == want {
				return int(m[name])
			}
		}
	}
	return 0
}

// DicePool 骰池大小 = 属性值 + 技能等级
func (s *Sheet) DicePool(attribute, skill string) int {
	return s.attributeRating(attribute) + s.SkillRating(skill)
}

// Limit 返回 physical / mental / social 上限，名称忽略大小写。
func (s *Sheet) Limit(limitType string) (int, error) {
	l := s.Derived.Limits
	switch strings.ToLower(strings.TrimSpace(limitType)) {
	case "physical":
		return int(l.Physical), nil
	case "mental":
		return int(l.Mental), nil
	case "social":
		return int(l.Social), nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidLimitType, limitType)
	}
}

// Clone 深拷贝，修改副本不会影响原角色。
func (s *Sheet) Clone() *Sheet {
	if s == nil {
		return nil
	}
	c := *s
	c.Magic = cloneRef(s.Magic)
	c.Resonance = cloneRef(s.Resonance)
	c.MatrixAttributes = cloneRef(s.MatrixAttributes)
	c.Skills = Skills{
		Combat:    maps.Clone(s.Skills.Combat),
		Physical:  maps.Clone(s.Skills.Physical),
		Social:    maps.Clone(s.Skills.Social),
		Technical: maps.Clone(s.Skills.Technical),
	}
	c.KnowledgeSkills = maps.Clone(s.KnowledgeSkills)
	c.Contacts = maps.Clone(s.Contacts)
	c.Inventory = maps.Clone(s.Inventory)
	c.Qualities = slices.Clone(s.Qualities)
	c.Cyberware = slices.Clone(s.Cyberware)
	c.Bioware = slices.Clone(s.Bioware)
	return &c
}

// ---- helpers ----

func (sk Skills) categories() []SkillMap {
	return []SkillMap{sk.Combat, sk.Physical, sk.Social, sk.Technical}
}

func (sk Skills) normalized() Skills {
	return Skills{
		Combat:    orEmpty(sk.Combat),
		Physical:  orEmpty(sk.Physical),
		Social:    orEmpty(sk.Social),
		Technical: orEmpty(sk.Technical),
	}
}

func orEmpty[M ~map[K]V, K comparable, V any](m M) M {
	if m == nil {
		return M{}
	}
	return m
}

func cloneRef[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func deref(p *uint8) uint8 {
	if p == nil {
		return 0
	}
	return *p
}

func bonus(v uint8, add, ceiling int) uint8 {
	return sat(min(int(v)+add, ceiling))
}

func clamp(v, lo, hi int) uint8 {
	return sat(max(lo, min(v, hi)))
}

func ceilThird(v int) uint8 {
	return sat((v + 2) / 3)
}

// sat 把 int 饱和到 uint8 范围
func sat(v int) uint8 {
	return uint8(max(0, min(v, 255)))
}
