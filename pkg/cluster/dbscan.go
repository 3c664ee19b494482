// Package cluster 提供只读的 DBSCAN 预览聚类，结果仅供参考，不写回数据库。
package cluster

import "FaceGallery/pkg/matcher"

// Noise 是离群点的标签。
const Noise = -1

// DBSCAN 对 points 做基于欧氏距离的密度聚类，返回与 points 一一对应的标签。
// 邻域包含点自身，minSamples 的含义与 scikit-learn 一致。
func DBSCAN(points [][]float64, eps float64, minSamples int) []int {
	const unvisited = -2

	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = unvisited
	}

	cluster := 0
	for i := range points {
		if labels[i] != unvisited {
			continue
		}
		neighbors := regionQuery(points, i, eps)
		if len(neighbors) < minSamples {
			labels[i] = Noise
			continue
		}

		labels[i] = cluster
		queue := append([]int(nil), neighbors...)
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]

			if labels[j] == Noise {
				// 边界点并入当前簇，但不继续扩展
				labels[j] = cluster
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = cluster
			if jn := regionQuery(points, j, eps); len(jn) >= minSamples {
				queue = append(queue, jn...)
			}
		}
		cluster++
	}
	return labels
}

func regionQuery(points [][]float64, i int, eps float64) []int {
	var out []int
	for j := range points {
		if matcher.Distance(points[i], points[j]) <= eps {
			out = append(out, j)
		}
	}
	return out
}

// Summary 汇总一次预览聚类的结果。
type Summary struct {
	TotalFaces     int         `json:"total_faces"`
	UniqueClusters int         `json:"unique_clusters"`
	Outliers       int         `json:"outliers"`
	ClusterSizes   map[int]int `json:"cluster_sizes"`
}

// Summarize 统计标签分布。
func Summarize(labels []int) Summary {
	s := Summary{TotalFaces: len(labels), ClusterSizes: make(map[int]int)}
	for _, l := range labels {
		if l == Noise {
			s.Outliers++
			continue
		}
		s.ClusterSizes[l]++
	}
	s.UniqueClusters = len(s.ClusterSizes)
	return s
}
