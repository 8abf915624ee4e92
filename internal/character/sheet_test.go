package character

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDummy(t *testing.T) {
	s := Dummy()

	require.Equal(t, "Dummy Character", s.Name)
	require.Equal(t, Human, s.Race)
	require.False(t, s.Main)
	require.Equal(t, Nuyen(5000), s.Nuyen)
	require.Equal(t, "Street", s.Lifestyle)
	require.Equal(t, uint8(1), s.Skills.Combat["Pistols"])
	require.Equal(t, uint8(1), s.Skills.Technical["First Aid"])
	require.NotNil(t, s.Inventory)
	require.NotNil(t, s.Contacts)

	// reaction 3 + intuition 3
	require.Equal(t, Initiative{Base: 6, Dice: 1}, s.Derived.Initiative)
	require.Equal(t, Monitors{Physical: 10, Stun: 10}, s.Derived.Monitors)
	require.Equal(t, Limits{Physical: 4, Mental: 4, Social: 5}, s.Derived.Limits)
}

func TestNewSheet_RaceModifiers(t *testing.T) {
	base := Attributes{
		Body: 4, Agility: 6, Reaction: 6, Strength: 4, Willpower: 3,
		Logic: 6, Intuition: 6, Charisma: 6, Edge: 1,
	}

	cases := []struct {
		race Race
		want Attributes
	}{
		{Human, Attributes{Body: 4, Agility: 6, Reaction: 6, Strength: 4, Willpower: 3, Logic: 6, Intuition: 6, Charisma: 6, Edge: 2}},
		{Elf, Attributes{Body: 4, Agility: 7, Reaction: 6, Strength: 4, Willpower: 3, Logic: 6, Intuition: 6, Charisma: 8, Edge: 1}},
		{Dwarf, Attributes{Body: 6, Agility: 5, Reaction: 5, Strength: 6, Willpower: 4, Logic: 6, Intuition: 6, Charisma: 6, Edge: 1}},
		{Ork, Attributes{Body: 7, Agility: 6, Reaction: 6, Strength: 6, Willpower: 3, Logic: 5, Intuition: 6, Charisma: 5, Edge: 1}},
		{Troll, Attributes{Body: 8, Agility: 5, Reaction: 6, Strength: 8, Willpower: 3, Logic: 5, Intuition: 5, Charisma: 4, Edge: 1}},
	}

	for _, tc := range cases {
		t.Run(string(tc.race), func(t *testing.T) {
			s := NewSheet(Draft{Name: "x", Race: tc.race, Attributes: base})
			require.Equal(t, tc.want, s.Attributes)
		})
	}
}

func TestSheet_ClampToRace(t *testing.T) {
	huge := Attributes{
		Body: 200, Agility: 200, Reaction: 200, Strength: 200, Willpower: 200,
		Logic: 200, Intuition: 200, Charisma: 200, Edge: 200,
	}

	cases := []struct {
		race Race
		want Attributes
	}{
		{Human, Attributes{Body: 10, Agility: 10, Reaction: 10, Strength: 10, Willpower: 10, Logic: 10, Intuition: 10, Charisma: 10, Edge: 7}},
		{Elf, Attributes{Body: 10, Agility: 11, Reaction: 10, Strength: 10, Willpower: 10, Logic: 10, Intuition: 10, Charisma: 12, Edge: 6}},
		{Troll, Attributes{Body: 14, Agility: 9, Reaction: 10, Strength: 14, Willpower: 10, Logic: 9, Intuition: 9, Charisma: 8, Edge: 6}},
		{Race(""), Attributes{Body: 10, Agility: 10, Reaction: 10, Strength: 10, Willpower: 10, Logic: 10, Intuition: 10, Charisma: 10, Edge: 7}},
	}

	for _, tc := range cases {
		t.Run(string(tc.race), func(t *testing.T) {
			s := &Sheet{Race: tc.race, Attributes: huge}
			s.ClampToRace()
			require.Equal(t, tc.want, s.Attributes)
		})
	}

	low := Dummy()
	before := low.Attributes
	low.ClampToRace()
	require.Equal(t, before, low.Attributes)
}

func TestSheet_DicePool(t *testing.T) {
	s := Dummy()
	s.Skills.Combat["Pistols"] = 4

	require.Equal(t, 7, s.DicePool("agility", "Pistols"))
	require.Equal(t, 7, s.DicePool("Agility", "pistols"))
	require.Equal(t, 3, s.DicePool("agility", "Astral Combat"))
	require.Equal(t, 0, s.DicePool("luck", ""))
}

func TestSheet_Limit(t *testing.T) {
	s := Dummy()

	l, err := s.Limit("Physical")
	require.NoError(t, err)
	require.Equal(t, 4, l)

	l, err = s.Limit("social")
	require.NoError(t, err)
	require.Equal(t, 5, l)

	_, err = s.Limit("astral")
	require.ErrorIs(t, err, ErrInvalidLimitType)
}

func TestSheet_CloneIsDeep(t *testing.T) {
	s := Dummy()
	s.Qualities = Qualities{{Name: "Lucky", Positive: true}}
	c := s.Clone()

	c.Skills.Combat["Pistols"] = 6
	c.Inventory["Knife"] = Item{Name: "Knife", Quantity: 1}
	c.Qualities[0].Name = "Unlucky"

	require.Equal(t, uint8(1), s.Skills.Combat["Pistols"])
	require.NotContains(t, s.Inventory, "Knife")
	require.Equal(t, "Lucky", s.Qualities[0].Name)
}

func TestSheet_JSONRoundTripAcceptsTupleInitiative(t *testing.T) {
	raw := `{
		"name": "Kestrel",
		"race": "Ork",
		"attributes": {"body": 7, "agility": 4},
		"derived_attributes": {"initiative": [9, 1], "limits": {"physical": 6}},
		"skills": {"combat": {"Blades": 3}},
		"inventory": {"Knife": {"name": "Knife", "quantity": 1, "description": ""}},
		"nuyen": 2500
	}`

	var s Sheet
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	require.Equal(t, Ork, s.Race)
	require.Equal(t, Initiative{Base: 9, Dice: 1}, s.Derived.Initiative)
	require.Equal(t, uint8(3), s.Skills.Combat["Blades"])
	require.Equal(t, Nuyen(2500), s.Nuyen)

	out, err := json.Marshal(s)
	require.NoError(t, err)

	var back Sheet
	require.NoError(t, json.Unmarshal(out, &back))
	require.Equal(t, s, back)
}

func TestSheet_RejectsUnknownRace(t *testing.T) {
	var s Sheet
	err := json.Unmarshal([]byte(`{"name":"x","race":"Gnome"}`), &s)
	require.ErrorIs(t, err, ErrInvalidRace)
}
