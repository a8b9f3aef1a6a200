package service

import (
	"fmt"

	"turing_arena/internal/model"
)

// ShuffleBuilder 为每道会话题目生成 字母->选项 的随机双射。
// 结果原样持久化，渲染与判分都只读它，不能重新计算。
type ShuffleBuilder struct {
	rnd RandomSource
}

func NewShuffleBuilder(rnd RandomSource) *ShuffleBuilder {
	return &ShuffleBuilder{rnd: rnd}
}

func (b *ShuffleBuilder) Build(optionIDs []uint, kind model.ChoiceKind) (model.ShuffleMap, error) {
	letters := kind.Letters()
	if len(optionIDs) != len(letters) {
		return nil, fmt.Errorf("shuffle: %d options for a %d-choice question", len(optionIDs), len(letters))
	}
	seen := make(map[uint]struct{}, len(optionIDs))
	for _, id := range optionIDs {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("shuffle: duplicate option id %d", id)
		}
		seen[id] = struct{}{}
	}

	perm := sampleIDs(b.rnd, optionIDs, len(optionIDs))
	m := make(model.ShuffleMap, len(letters))
	for i, letter := range letters {
		m[letter] = perm[i]
	}
	return m, nil
}
