// Package patternmatch 编译通配模式为正则并以 LRU 缓存结果。
//
// 从简单前缀匹配泛化为完整的 glob→regex 编译，使用 Go stdlib regexp
// (RE2, 线性时间，天然不受 ReDoS 影响) —— 见 DESIGN.md 关于不采用
// dlclark/regexp2 的说明。
package patternmatch

import (
	"regexp"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/multi-agent/messaging-runtime/internal/hostapi"
	"github.com/multi-agent/messaging-runtime/internal/ids"
	apperrors "github.com/multi-agent/messaging-runtime/pkg/errors"
)

// DefaultCacheSize 默认 LRU 容量。
const DefaultCacheSize = 1000

// executionBudget 单次 matches 调用的逻辑耗时预算。
const executionBudget = 5 * time.Millisecond

// CompiledPattern 编译后的模式。
type CompiledPattern struct {
	Pattern    ids.MessagePattern
	Regex      *regexp.Regexp
	CompiledAt time.Time
}

// CacheStats 缓存命中率统计。
type CacheStats struct {
	Hits, Misses, Size, Max int
}

func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Matcher 编译+缓存通配模式，对外暴露 matches/compile/cache_*。
type Matcher struct {
	log   hostapi.Logger
	clock hostapi.Clock

	mu           sync.Mutex
	cache        *lru.LRU[ids.MessagePattern, *CompiledPattern]
	hits, misses int
	max          int
}

// New 创建一个容量为 maxSize 的模式匹配器；maxSize ≤ 0 时使用默认值。
func New(maxSize int, log hostapi.Logger, clock hostapi.Clock) *Matcher {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	if clock == nil {
		clock = hostapi.SystemClock{}
	}
	c, _ := lru.NewLRU[ids.MessagePattern, *CompiledPattern](maxSize, nil)
	return &Matcher{log: log, clock: clock, cache: c, max: maxSize}
}

// Compile 将模式编译为正则，命中缓存时复用已有实例。
func (m *Matcher) Compile(pattern ids.MessagePattern) (*CompiledPattern, error) {
	m.mu.Lock()
	if cp, ok := m.cache.Get(pattern); ok {
		m.hits++
		m.mu.Unlock()
		return cp, nil
	}
	m.misses++
	m.mu.Unlock()

	re, err := toRegex(pattern)
	if err != nil {
		return nil, err
	}
	cp := &CompiledPattern{Pattern: pattern, Regex: re, CompiledAt: m.clock.Now()}

	m.mu.Lock()
	m.cache.Add(pattern, cp)
	m.mu.Unlock()
	return cp, nil
}

// Matches 判定 messageType 是否整体匹配 pattern (两端锚定)。
//
// 编译失败 (非法模式) 对调用方是致命的 (InvalidPattern/PatternTooLong)；
// 执行期错误非致命，记录后返回 false。
func (m *Matcher) Matches(pattern ids.MessagePattern, messageType ids.ValidatedMessageType) (bool, error) {
	cp, err := m.Compile(pattern)
	if err != nil {
		return false, err
	}

	start := m.clock.Now()
	matched := func() (result bool) {
		defer func() {
			if r := recover(); r != nil {
				if m.log != nil {
					m.log.Error("pattern execution panicked", "pattern", string(pattern), "recover", r)
				}
				result = false
			}
		}()
		return cp.Regex.MatchString(string(messageType))
	}()

	if elapsed := m.clock.Since(start); elapsed > executionBudget && m.log != nil {
		m.log.Warn("pattern match exceeded execution budget", "pattern", string(pattern), "elapsed_ms", elapsed.Milliseconds())
	}
	return matched, nil
}

// CacheSize 当前缓存条目数。
func (m *Matcher) CacheSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.Len()
}

// CacheStats 返回命中率统计。
func (m *Matcher) CacheStats() CacheStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return CacheStats{Hits: m.hits, Misses: m.misses, Size: m.cache.Len(), Max: m.max}
}

// ClearCache 清空缓存并重置计数器。
func (m *Matcher) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Purge()
	m.hits, m.misses = 0, 0
}

// toRegex 把通配模式编译为锚定正则。
func toRegex(pattern ids.MessagePattern) (*regexp.Regexp, error) {
	s := string(pattern)
	if len(s) > 1000 {
		return nil, apperrors.Newf("patternmatch.toRegex", apperrors.CodePatternTooLong,
			apperrors.ErrPatternTooLong, "pattern length %d exceeds 1000", len(s))
	}

	var b strings.Builder
	b.WriteByte('^')
	for _, r := range s {
		switch r {
		case '.':
			b.WriteString(`\.`)
		case '*':
			b.WriteString(`.*`)
		default:
			if isRegexMeta(r) {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('$')

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, apperrors.New("patternmatch.toRegex", apperrors.CodeInvalidPattern, "invalid pattern", apperrors.ErrInvalidPattern).WithContext(map[string]any{"pattern": s, "cause": err.Error()})
	}
	return re, nil
}

func isRegexMeta(r rune) bool {
	switch r {
	case '\\', '+', '?', '(', ')', '[', ']', '{', '}', '^', '$', '|':
		return true
	default:
		return false
	}
}
