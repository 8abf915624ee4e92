package game

import (
	"errors"
	"fmt"

	"sharad-cli/internal/character"
)

var (
	ErrCharacterNotFound = errors.New("character not found")
	ErrDuplicateName     = errors.New("character name already in use")
)

// Conversation 远端会话句柄，每局游戏创建一次。
type Conversation struct {
	AssistantID string `json:"assistant_id"`
	ThreadID    string `json:"thread_id"`
}

// State 一局游戏的状态：会话句柄、角色列表和主角快照。
//
// State 不加锁。一个回合进行期间只有回合的调用方可以修改它，
// 工具通过事件提出修改，由调用方在同一个 goroutine 内应用。
type State struct {
	Conversation
	SaveName   string             `json:"save_name"`
	Characters []*character.Sheet `json:"characters"`
	Main       *character.Sheet   `json:"main_character_sheet,omitempty"`
}

// New 创建空的游戏状态
func New(saveName string) *State {
	return &State{SaveName: saveName}
}

// HasConversation 会话句柄是否已建立
func (s *State) HasConversation() bool {
	return s.AssistantID != "" && s.ThreadID != ""
}

// Roster 返回角色列表
func (s *State) Roster() []*character.Sheet {
	return s.Characters
}

// FindCharacter 按名称精确查找角色
func (s *State) FindCharacter(name string) (*character.Sheet, bool) {
	for _, c := range s.Characters {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// MainCharacter 返回主角快照，可能为 nil
func (s *State) MainCharacter() *character.Sheet {
	return s.Main
}

// AddCharacter 把工具创建的角色加入列表：同名替换，否则追加。
// 只有 Main 为 true 的角色才会成为主角快照。
func (s *State) AddCharacter(sheet *character.Sheet) {
	if sheet == nil {
		return
	}
	s.upsert(sheet)
	if sheet.Main {
		s.Main = sheet.Clone()
	}
}

// MergeSnapshot 合并叙事消息中携带的完整角色快照。
// 同名条目被替换，新名称追加到末尾，列表长度不会减少；
// 快照无条件成为新的主角快照。
func (s *State) MergeSnapshot(sheet *character.Sheet) {
	if sheet == nil {
		return
	}
	s.upsert(sheet)
	s.Main = sheet.Clone()
}

// upsert 存入副本，调用方持有的指针不会与列表共享
func (s *State) upsert(sheet *character.Sheet) {
	own := sheet.Clone()
	for i, c := range s.Characters {
		if c.Name == own.Name {
			s.Characters[i] = own
			return
		}
	}
	s.Characters = append(s.Characters, own)
}

// ApplyUpdates 按顺序把更新作用到指定角色。
//
// 单个更新失败只会跳过该更新，其余更新照常应用，所有错误合并后返回。
// 至少有一个更新成功时把基础属性限制在种族增强上限内并重新计算派生属性；
// 若该角色是主角，同时刷新主角快照。
func (s *State) ApplyUpdates(name string, updates []character.Update) error {
	sheet, ok := s.FindCharacter(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrCharacterNotFound, name)
	}

	var errs []error
	applied := 0
	for _, u := range updates {
		if err := s.checkRename(sheet, u); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := character.Apply(sheet, u); err != nil {
			errs = append(errs, err)
			continue
		}
		applied++
	}

	if applied > 0 {
		sheet.ClampToRace()
		sheet.RecomputeDerived()
		if s.Main != nil && s.Main.Name == name {
			s.Main = sheet.Clone()
		}
	}
	return errors.Join(errs...)
}

// checkRename 改名不能与其他角色重名
func (s *State) checkRename(sheet *character.Sheet, u character.Update) error {
	if u.Attribute != "name" {
		return nil
	}
	newName, ok := u.Value.(character.String)
	if !ok || string(newName) == sheet.Name {
		return nil
	}
	if _, taken := s.FindCharacter(string(newName)); taken {
		return fmt.Errorf("rename %q: %w: %q", sheet.Name, ErrDuplicateName, newName)
	}
	return nil
}
