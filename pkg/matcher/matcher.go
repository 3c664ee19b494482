// Package matcher 实现基于欧氏距离的身份匹配。
//
// 匹配规则：按候选列表顺序逐个比较，距离 <= 容差即视为匹配，
// 返回第一个匹配项（不一定是最近的那一个）。
package matcher

import (
	"math"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultTolerance 是配置缺省时使用的匹配容差。
const DefaultTolerance = 0.6

// Candidate 是一个已知特征向量及其所属人物。
type Candidate struct {
	Embedding []float64
	PersonID  primitive.ObjectID
}

// Distance 计算两个向量的欧氏距离。维度不同返回 +Inf，保证永远不会匹配。
func Distance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Distances 按顺序返回 embedding 与每个已知向量的距离。
func Distances(known [][]float64, embedding []float64) []float64 {
	out := make([]float64, len(known))
	for i, k := range known {
		out[i] = Distance(k, embedding)
	}
	return out
}

// Match 返回第一个距离不超过 tolerance 的候选所属的人物。
func Match(embedding []float64, known []Candidate, tolerance float64) (primitive.ObjectID, bool) {
	i := FirstMatch(embedding, known, tolerance)
	if i < 0 {
		return primitive.NilObjectID, false
	}
	return known[i].PersonID, true
}

// FirstMatch 返回第一个匹配候选的下标，没有匹配时返回 -1。
func FirstMatch(embedding []float64, known []Candidate, tolerance float64) int {
	for i, c := range known {
		if Distance(c.Embedding, embedding) <= tolerance {
			return i
		}
	}
	return -1
}
