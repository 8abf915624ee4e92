package event

import (
	"context"
	"errors"

	"sharad-cli/internal/character"
)

var (
	ErrNilBus  = errors.New("event: bus is nil")
	ErrBusFull = errors.New("event: channel buffer full")
)

// DefaultBuffer 每个通道的默认缓冲大小
const DefaultBuffer = 32

// CharacterAdded 工具创建了一个新角色。Fallback 为 true 表示参数无法解析，使用了替补角色。
type CharacterAdded struct {
	Sheet    *character.Sheet
	Fallback bool
}

// UpdateRequest 一次工具调用解析出的全部属性更新，按顺序作用于同一个角色。
type UpdateRequest struct {
	Tool      string
	Character string
	Updates   []character.Update
}

// ImageReady 后台图像生成任务的结果
type ImageReady struct {
	JobID     string
	Character string
	Prompt    string
	Path      string
	Err       error
}

// Pending 一次 Drain 取出的待处理事件
type Pending struct {
	Characters []CharacterAdded
	Updates    []UpdateRequest
}

// Empty 没有任何待处理事件
func (p Pending) Empty() bool {
	return len(p.Characters) == 0 && len(p.Updates) == 0
}

// Bus 把工具产生的事件路由到三个独立通道。
// 角色与更新事件由状态持有方消费，图像事件由界面层消费。
type Bus struct {
	characters chan CharacterAdded
	updates    chan UpdateRequest
	images     chan ImageReady
}

// NewBus 创建事件总线，buffer <= 0 时使用 DefaultBuffer。
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{
		characters: make(chan CharacterAdded, buffer),
		updates:    make(chan UpdateRequest, buffer),
		images:     make(chan ImageReady, buffer),
	}
}

// EmitCharacter 发布角色创建事件，不阻塞；缓冲已满时返回 ErrBusFull。
func (b *Bus) EmitCharacter(evt CharacterAdded) error {
	if b == nil {
		return ErrNilBus
	}
	return offer(b.characters, evt)
}

// EmitUpdate 发布属性更新请求，不阻塞；缓冲已满时返回 ErrBusFull。
func (b *Bus) EmitUpdate(evt UpdateRequest) error {
	if b == nil {
		return ErrNilBus
	}
	return offer(b.updates, evt)
}

// PublishImage 发布图像结果。由后台任务调用，会一直等待到有空位或 ctx 结束。
func (b *Bus) PublishImage(ctx context.Context, evt ImageReady) error {
	if b == nil {
		return ErrNilBus
	}
	select {
	case b.images <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) Characters() <-chan CharacterAdded { return b.characters }
func (b *Bus) Updates() <-chan UpdateRequest     { return b.updates }
func (b *Bus) Images() <-chan ImageReady         { return b.images }

// Drain 非阻塞地取出当前所有角色与更新事件，角色事件在前。
func (b *Bus) Drain() Pending {
	if b == nil {
		return Pending{}
	}
	return Pending{
		Characters: drain(b.characters),
		Updates:    drain(b.updates),
	}
}

// DrainImages 非阻塞地取出所有已完成的图像结果
func (b *Bus) DrainImages() []ImageReady {
	if b == nil {
		return nil
	}
	return drain(b.images)
}

func drain[T any](ch chan T) []T {
	var out []T
	for {
		select {
		case evt := <-ch:
			out = append(out, evt)
		default:
			return out
		}
	}
}

func offer[T any](ch chan T, evt T) error {
	select {
	case ch <- evt:
		return nil
	default:
		return ErrBusFull
	}
}
