package tools

import (
	"sharad-cli/internal/dice"
	"sharad-cli/internal/event"
)

// NewGameRegistry 注册全部游戏工具。
// 返回的 ImageTool 供调用方在退出前等待后台图像任务。
func NewGameRegistry(bus *event.Bus, src dice.Source, gen ImageGenerator) (*Registry, *ImageTool) {
	images := NewImageTool(gen, bus)

	r := NewRegistry(
		NewCreateCharacterTool(bus),
		NewDiceRollTool(src),
		images,
	)
	for _, t := range NewUpdateTools(bus) {
		r.Register(t)
	}
	return r, images
}
