// Podbox pod distribution engine
//
// Takes the current player list and size bounds and partitions a shuffled
// copy into balanced pods:
// - Pod counts are searched smallest-first, so fewer, larger pods win ties
// - Remainder players are spread across the earliest pods, keeping any two
//   pod sizes within one of each other
// - A sequential packer handles degenerate size configs; its final pod may
//   be undersized rather than dropping players
// - The shuffle step is injectable, so results are deterministic under a
//   fixed permutation

package main

import (
	"errors"
	"math/rand"
	"slices"
)

// minPodSize is the floor below which no pod may be configured.
const minPodSize = 3

// ErrInsufficientPlayers is returned when fewer than minPodSize players are
// supplied. It is the engine's only hard failure.
var ErrInsufficientPlayers = errors.New("at least 3 players are required to form a pod")

// Pod is a single group of players assigned to play together.
type Pod struct {
	ID      int      `json:"id"`
	Members []string `json:"members"`
	Size    int      `json:"size"`
}

// SizeConfig holds the pod size bounds used during distribution.
type SizeConfig struct {
	MinSize    int `json:"min_pod_size"`
	TargetSize int `json:"target_pod_size"`
	MaxSize    int `json:"max_pod_size"`
}

// normalized clamps the config into 3 <= min <= target <= max. A broken
// config should not block pod creation.
func (c SizeConfig) normalized() SizeConfig {
	if c.MinSize < minPodSize {
		c.MinSize = minPodSize
	}
	if c.TargetSize < c.MinSize {
		c.TargetSize = c.MinSize
	}
	if c.MaxSize < c.TargetSize {
		c.MaxSize = c.TargetSize
	}
	return c
}

// Shuffler randomizes the order of n elements via swap. It matches the
// signature of rand.Shuffle so a seeded or fixed permutation can be
// substituted in tests.
type Shuffler func(n int, swap func(i, j int))

// Distribute partitions players into randomly shuffled, size-balanced pods.
//
// The players slice is not modified; a shuffled copy is sliced into pods.
// Pod IDs are sequential from 1 in the order pods were formed. Every input
// player lands in exactly one pod. When shuffle is nil, an unbiased
// math/rand/v2 shuffle is used.
func Distribute(players []string, cfg SizeConfig, shuffle Shuffler) ([]Pod, error) {
	n := len(players)
	if n < minPodSize {
		return nil, ErrInsufficientPlayers
	}

	cfg = cfg.normalized()

	shuffled := slices.Clone(players)
	if shuffle == nil {
		shuffle = rand.Shuffle
	}
	shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	// k pods can hold between k*min and k*max players, so this closed range
	// is exactly the set of pod counts for which an all-bounded partition
	// exists. Smallest k first: fewer, larger pods are better for gameplay.
	lowest := (n + cfg.MaxSize - 1) / cfg.MaxSize
	highest := n / cfg.MinSize

	for k := lowest; k <= highest; k++ {
		if k < 1 {
			continue
		}

		pods, ok := slicePods(shuffled, k, cfg)
		if ok {
			return pods, nil
		}
	}

	return packSequential(shuffled, cfg), nil
}

// slicePods cuts players into k pods, giving the first n%k pods one extra
// member so sizes differ by at most one. It reports false if any computed
// size falls outside the bounds or the slices fail to cover every player.
func slicePods(players []string, k int, cfg SizeConfig) ([]Pod, bool) {
	n := len(players)
	base := n / k
	rem := n % k

	pods := make([]Pod, 0, k)
	next := 0

	for i := 0; i < k; i++ {
		size := base
		if i < rem {
			size++
		}

		if size < cfg.MinSize || size > cfg.MaxSize {
			return nil, false
		}

		members := slices.Clone(players[next : next+size])
		pods = append(pods, Pod{
			ID:      i + 1,
			Members: members,
			Size:    len(members),
		})
		next += size
	}

	if next != n {
		return nil, false
	}

	return pods, true
}

// packSequential is the fallback used when no pod count yields an
// all-bounded partition. It walks the shuffled list emitting pods of
// TargetSize; a trailing remainder smaller than MinSize merges into the
// last pod if that stays within MaxSize, and otherwise becomes an
// explicitly undersized final pod. Undersizing is the one allowed bound
// violation: dropping players is never acceptable.
func packSequential(players []string, cfg SizeConfig) []Pod {
	var pods []Pod

	for i := 0; i < len(players); {
		remaining := len(players) - i

		if remaining < cfg.MinSize && len(pods) > 0 {
			last := &pods[len(pods)-1]
			if last.Size+remaining <= cfg.MaxSize {
				last.Members = append(last.Members, players[i:]...)
				last.Size = len(last.Members)
				return pods
			}
		}

		size := cfg.TargetSize
		if size > remaining {
			size = remaining
		}

		members := slices.Clone(players[i : i+size])
		pods = append(pods, Pod{
			ID:      len(pods) + 1,
			Members: members,
			Size:    len(members),
		})
		i += size
	}

	return pods
}

// DistributionStats summarizes a set of pods for display.
type DistributionStats struct {
	TotalPods    int     `json:"total_pods"`
	TotalPlayers int     `json:"total_players"`
	AvgPodSize   float64 `json:"avg_pod_size"`
	MinPodSize   int     `json:"min_pod_size"`
	MaxPodSize   int     `json:"max_pod_size"`
	PodSizes     []int   `json:"pod_sizes"`
}

// Summarize computes display statistics for a distribution result.
func Summarize(pods []Pod) DistributionStats {
	if len(pods) == 0 {
		return DistributionStats{}
	}

	stats := DistributionStats{
		TotalPods: len(pods),
		PodSizes:  make([]int, 0, len(pods)),
	}

	stats.MinPodSize = pods[0].Size
	stats.MaxPodSize = pods[0].Size

	for _, pod := range pods {
		stats.TotalPlayers += pod.Size
		stats.PodSizes = append(stats.PodSizes, pod.Size)

		if pod.Size < stats.MinPodSize {
			stats.MinPodSize = pod.Size
		}
		if pod.Size > stats.MaxPodSize {
			stats.MaxPodSize = pod.Size
		}
	}

	stats.AvgPodSize = float64(stats.TotalPlayers) / float64(len(pods))

	return stats
}
