// Package dice 实现 Shadowrun 风格的 d6 骰池判定。
//
// 每颗骰子掷出 5 或 6 记为一次命中（hit），掷出 6 时追加一颗骰子（Rule of Six），
// 追加的骰子紧跟在触发它的 6 之后写入结果序列。掷出 1 的骰子计入 ones，
// 用于判定 glitch。
//
// # 随机源
//
// Roll 不持有全局状态，所有随机性都来自调用方传入的 Source。
// 生产环境使用 NewRandomSource，测试使用固定序列的 Source，
// 因此同一组骰面总能复现同一个 Result。
package dice

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	mrand "math/rand"
	"sync"
	"time"
)

// ErrInvalidEdgeAction 表示无法识别的 edge 动作名称。
var ErrInvalidEdgeAction = errors.New("invalid edge action")

const (
	// Sides 骰子面数
	Sides = 6
	// HitFace 计为命中的最小点数
	HitFace = 5
)

// ---- Edge ----

// EdgeKind edge 动作类型
type EdgeKind uint8

const (
	RerollFailures EdgeKind = iota + 1
	AddExtraDice
	PushTheLimit
)

func (k EdgeKind) String() string {
	switch k {
	case RerollFailures:
		return "RerollFailures"
	case AddExtraDice:
		return "AddExtraDice"
	case PushTheLimit:
		return "PushTheLimit"
	default:
		return fmt.Sprintf("EdgeKind(%d)", uint8(k))
	}
}

// EdgeAction 一次掷骰附带的 edge 动作。
// ExtraDice 只在 Kind 为 AddExtraDice 时有意义。
type EdgeAction struct {
	Kind      EdgeKind
	ExtraDice int
}

// ParseEdgeAction 把工具参数中的 edge 名称解析为 EdgeAction。
//
// 空名称表示不使用 edge。AddExtraDice 缺少 extraDice 或数量为 0 时同样视为不使用 edge。
// 其余未知名称返回 ErrInvalidEdgeAction，调用方应在掷骰之前拒绝请求。
func ParseEdgeAction(name string, extraDice *int) (*EdgeAction, error) {
	switch name {
	case "":
		return nil, nil
	case "RerollFailures":
		return &EdgeAction{Kind: RerollFailures}, nil
	case "AddExtraDice":
		if extraDice == nil || *extraDice <= 0 {
			return nil, nil
		}
		return &EdgeAction{Kind: AddExtraDice, ExtraDice: *extraDice}, nil
	case "PushTheLimit":
		return &EdgeAction{Kind: PushTheLimit}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidEdgeAction, name)
	}
}

// ---- Source ----

// Source 骰面来源，每次调用返回 [1, Sides] 区间内的一个点数。
type Source interface {
	Face() int
}

// randSource 基于 math/rand 的 Source，加锁后可被多个调用方共享。
type randSource struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

// NewSource 使用固定种子创建 Source，相同种子产生相同的骰面序列。
func NewSource(seed int64) Source {
	return &randSource{rng: mrand.New(mrand.NewSource(seed))}
}

// NewRandomSource 使用 crypto/rand 生成的种子创建 Source。
// 读取系统熵失败时退回到当前时间作为种子。
func NewRandomSource() Source {
	return NewSource(newSeed())
}

func (s *randSource) Face() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(Sides) + 1
}

func newSeed() int64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}

// ---- Roll ----

// Request 一次掷骰的输入。Limit 与 Threshold 为 nil 表示未指定。
type Request struct {
	Pool      int
	Limit     *int
	Threshold *int
	Edge      *EdgeAction
}

// Result 掷骰结果，字段名与工具输出的 JSON 一致。
type Result struct {
	Dice            []int `json:"dice_results"`
	Hits            int   `json:"hits"`
	Success         bool  `json:"success"`
	Glitch          bool  `json:"glitch"`
	CriticalGlitch  bool  `json:"critical_glitch"`
	CriticalSuccess bool  `json:"critical_success"`
}

// Roll 按 Request 掷出一组骰子。
//
// 顺序固定：先掷基础骰池（含 6 的追加骰），再结算 edge 动作，
// 然后按 Limit 截断命中数，最后判定 glitch 与成功。
// glitch 以原始骰池大小计算：ones > Pool/2，追加骰不计入分母。
//
// PushTheLimit 不改变骰子，Limit 依旧生效。
func Roll(src Source, req Request) Result {
	pool := max(req.Pool, 0)

	t := &tally{src: src, dice: make([]int, 0, pool)}
	for range pool {
		t.dice = t.throw(t.dice)
	}

	if req.Edge != nil {
		t.applyEdge(*req.Edge)
	}

	if req.Limit != nil && t.hits > *req.Limit {
		t.hits = max(*req.Limit, 0)
	}

	res := Result{
		Dice: t.dice,
		Hits: t.hits,
	}
	res.Glitch = t.ones > pool/2
	res.CriticalGlitch = res.Glitch && res.Hits == 0

	if req.Threshold != nil {
		res.CriticalSuccess = res.Hits >= *req.Threshold*2
		res.Success = res.Hits >= *req.Threshold
	} else {
		res.Success = res.Hits > 0
	}

	return res
}

// tally 记录一次掷骰过程中的骰面和计数。
type tally struct {
	src  Source
	dice []int
	hits int
	ones int
}

// throw 掷一颗骰子并处理 6 的追加，结果依次追加到 dst。
func (t *tally) throw(dst []int) []int {
	for {
		face := t.src.Face()
		dst = append(dst, face)
		switch {
		case face >= HitFace:
			t.hits++
		case face == 1:
			t.ones++
		}
		if face != Sides {
			return dst
		}
	}
}

func (t *tally) applyEdge(edge EdgeAction) {
	switch edge.Kind {
	case RerollFailures:
		// 所有未命中的骰子各重掷一次，重掷出的 6 同样追加骰子
		rerolled := make([]int, 0, len(t.dice))
		for _, face := range t.dice {
			if face >= HitFace {
				rerolled = append(rerolled, face)
				continue
			}
			if face == 1 {
				t.ones--
			}
			rerolled = t.throw(rerolled)
		}
		t.dice = rerolled

	case AddExtraDice:
		for range max(edge.ExtraDice, 0) {
			t.dice = t.throw(t.dice)
		}

	case PushTheLimit:
	}
}
