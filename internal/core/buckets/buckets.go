// Package buckets 提供基于 XOR 距离的桶索引度量
//
// 节点标识先经 blake3 摘要为 256 位 Key，再以 Kademlia 风格的
// XOR 距离组织：距离越近（前导零越多）桶索引越小。索引只在
// 邻居查找时即时计算，不做任何持久化。
package buckets

import (
	"bytes"
	"math/bits"
	"sort"

	"lukechampine.com/blake3"
)

// NBuckets 是桶索引空间的大小，与 Key 的位数一致
const NBuckets = 256

// Key 是 256 位度量键（标识字符串的 blake3 摘要）
type Key [32]byte

// KeyOf 计算标识字符串的度量键
func KeyOf(s string) Key {
	return blake3.Sum256([]byte(s))
}

// Distance 计算两个键的 XOR 距离
func Distance(a, b Key) Key {
	var d Key
	for i := range a {
		d[i] = a[i] ^ b[i]
	}
	return d
}

// LeadingZeros 返回键的前导零位数，范围 [0, NBuckets]
func (k Key) LeadingZeros() int {
	zeros := 0
	for _, b := range k {
		if b == 0 {
			zeros += 8
			continue
		}
		return zeros + bits.LeadingZeros8(b)
	}
	return zeros
}

// BucketIndex 计算 other 相对 self 的桶索引
//
// 索引 = NBuckets - 距离的前导零位数，结果钳制在 [0, NBuckets-1]：
// BucketIndex(k, k) == 0，首位即不同的键落在最后一个桶。
// 距离越近索引越小，同一桶内的键距离量级相同。
func BucketIndex(self, other Key) int {
	index := NBuckets - Distance(self, other).LeadingZeros()
	if index < 0 {
		index = 0
	}
	if index > NBuckets-1 {
		index = NBuckets - 1
	}
	return index
}

// CloserTo 判断 a 到 ref 的距离是否严格小于 b 到 ref 的距离
func CloserTo(ref, a, b Key) bool {
	da := Distance(ref, a)
	db := Distance(ref, b)
	return bytes.Compare(da[:], db[:]) < 0
}

// Neighbors 返回距 self 最近的 n 个候选的下标，按 XOR 距离升序
//
// 固定 self 时 XOR 距离是单射，除重复键外不存在并列。
func Neighbors(self Key, candidates []Key, n int) []int {
	if n <= 0 || len(candidates) == 0 {
		return nil
	}
	idx := make([]int, len(candidates))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool {
		return CloserTo(self, candidates[idx[i]], candidates[idx[j]])
	})
	if n < len(idx) {
		idx = idx[:n]
	}
	return idx
}
