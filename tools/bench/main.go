package main

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// -------------------- 系统监控 --------------------

type SystemStats struct {
	Timestamp   time.Time
	MemoryUsage float64
	MemoryTotal uint64
	MemoryUsed  uint64
	Goroutines  int
}

type Monitor struct {
	stats    []SystemStats
	interval time.Duration
	stopChan chan struct{}
}

func NewMonitor(interval time.Duration) *Monitor {
	return &Monitor{
		stats:    make([]SystemStats, 0, 512),
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

func getMemoryUsage() (usagePercent float64, total, used uint64) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	total = m.Sys
	used = m.Alloc
	if total > 0 {
		usagePercent = float64(used) / float64(total) * 100
	}
	return
}

func (m *Monitor) collectStats() SystemStats {
	memUsage, memTotal, memUsed := getMemoryUsage()
	stats := SystemStats{
		Timestamp:   time.Now(),
		MemoryUsage: memUsage,
		MemoryTotal: memTotal,
		MemoryUsed:  memUsed,
		Goroutines:  runtime.NumGoroutine(),
	}
	m.stats = append(m.stats, stats)
	return stats
}

func (m *Monitor) Start() {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.printStats(m.collectStats())
			case <-m.stopChan:
				return
			}
		}
	}()
}

func (m *Monitor) Stop() { close(m.stopChan) }

func (m *Monitor) printStats(s SystemStats) {
	fmt.Printf("[%s] 内存: %.1f%% (%.1fMB/%.1fMB) | Goroutines: %d\n",
		s.Timestamp.Format("15:04:05"), s.MemoryUsage,
		float64(s.MemoryUsed)/1024/1024, float64(s.MemoryTotal)/1024/1024,
		s.Goroutines,
	)
}

func (m *Monitor) GenerateReport() {
	if len(m.stats) == 0 {
		fmt.Println("没有监控数据")
		return
	}
	var sumMem float64
	var sumGo int
	var maxMem float64
	var maxGo int
	for _, s := range m.stats {
		sumMem += s.MemoryUsage
		sumGo += s.Goroutines
		if s.MemoryUsage > maxMem {
			maxMem = s.MemoryUsage
		}
		if s.Goroutines > maxGo {
			maxGo = s.Goroutines
		}
	}
	n := float64(len(m.stats))
	fmt.Println("\n=== 系统监控报告 ===")
	fmt.Printf("持续: %v\n", m.stats[len(m.stats)-1].Timestamp.Sub(m.stats[0].Timestamp))
	fmt.Printf("平均内存: %.1f%%, 峰值内存: %.1f%%\n", sumMem/n, maxMem)
	fmt.Printf("平均Goroutine: %d, 峰值Goroutine: %d\n", int(float64(sumGo)/n+0.5), maxGo)
}

// -------------------- WebSocket 压测 --------------------

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type ackPayload struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type BenchStats struct {
	Sent      int
	Acked     int
	Failed    int
	Delivered int
	SumAckLat time.Duration
	MaxAckLat time.Duration
	MinAckLat time.Duration
	mu        sync.Mutex
}

func (s *BenchStats) AddAck(lat time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !ok {
		s.Failed++
		return
	}
	s.Acked++
	s.SumAckLat += lat
	if lat > s.MaxAckLat {
		s.MaxAckLat = lat
	}
	if s.MinAckLat == 0 || lat < s.MinAckLat {
		s.MinAckLat = lat
	}
}

func (s *BenchStats) AddDelivered() {
	s.mu.Lock()
	s.Delivered++
	s.mu.Unlock()
}

// dialAndJoin 建立连接并发送join，上线广播留给各自的读循环跳过
func dialAndJoin(wsURL, userID string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, err
	}
	data, _ := json.Marshal(userID)
	if err := conn.WriteJSON(frame{Event: "join", Data: data}); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// runPair 一对用户互发消息：A发送并统计ack延迟，B统计收到的转发
func runPair(wsURL string, pairID, messages int, stats *BenchStats, wg *sync.WaitGroup) {
	defer wg.Done()

	userA := fmt.Sprintf("bench-%d-a", pairID)
	userB := fmt.Sprintf("bench-%d-b", pairID)

	connA, err := dialAndJoin(wsURL, userA)
	if err != nil {
		fmt.Printf("pair %d: 连接失败: %v\n", pairID, err)
		return
	}
	defer connA.Close()

	connB, err := dialAndJoin(wsURL, userB)
	if err != nil {
		fmt.Printf("pair %d: 连接失败: %v\n", pairID, err)
		return
	}
	defer connB.Close()

	// B侧读取转发的消息
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_ = connB.SetReadDeadline(time.Now().Add(10 * time.Second))
			var f frame
			if err := connB.ReadJSON(&f); err != nil {
				return
			}
			if f.Event == "receive_message" {
				stats.AddDelivered()
			}
		}
	}()

	// A发送并等待每条消息的ack
	for i := 0; i < messages; i++ {
		msg := map[string]string{
			"id":          uuid.NewString(),
			"sender_id":   userA,
			"receiver_id": userB,
			"content":     fmt.Sprintf("bench message %d from pair %d", i, pairID),
			"type":        "text",
		}
		data, _ := json.Marshal(msg)
		start := time.Now()
		if err := connA.WriteJSON(frame{Event: "send_message", Data: data}); err != nil {
			stats.AddAck(0, false)
			continue
		}
		stats.mu.Lock()
		stats.Sent++
		stats.mu.Unlock()

		// 读到本条消息的ack为止，中途的状态广播直接跳过
		for {
			_ = connA.SetReadDeadline(time.Now().Add(8 * time.Second))
			var f frame
			if err := connA.ReadJSON(&f); err != nil {
				stats.AddAck(0, false)
				break
			}
			if f.Event != "message_ack" {
				continue
			}
			var ack ackPayload
			if err := json.Unmarshal(f.Data, &ack); err != nil || ack.ID != msg["id"] {
				continue
			}
			stats.AddAck(time.Since(start), ack.Status == "stored")
			break
		}
	}

	// 给B留一点时间把尾部消息收完
	time.Sleep(500 * time.Millisecond)
	connB.Close()
	<-done
}

func runWSBench(wsURL string, pairs, messages int) {
	fmt.Println("\n=== WebSocket聊天压测开始 ===")
	fmt.Printf("目标: %s 用户对: %d 每对消息: %d\n", wsURL, pairs, messages)

	stats := &BenchStats{}
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < pairs; i++ {
		wg.Add(1)
		go runPair(wsURL, i, messages, stats, &wg)
	}
	wg.Wait()

	took := time.Since(start)
	fmt.Println("\n=== WebSocket压测结果 ===")
	fmt.Printf("耗时: %v\n", took)
	fmt.Printf("发送: %d 确认: %d 失败: %d 送达: %d\n", stats.Sent, stats.Acked, stats.Failed, stats.Delivered)
	if stats.Acked > 0 {
		fmt.Printf("ack延迟 平均: %v 最大: %v 最小: %v\n",
			stats.SumAckLat/time.Duration(stats.Acked), stats.MaxAckLat, stats.MinAckLat)
	}
	if took > 0 {
		fmt.Printf("消息吞吐: %.2f msg/s\n", float64(stats.Acked)/took.Seconds())
	}
	if stats.Sent > 0 {
		fmt.Printf("确认率: %.2f%%\n", float64(stats.Acked)/float64(stats.Sent)*100)
	}
}

// -------------------- 入口 --------------------

func main() {
	pairs := 5
	messages := 10
	if len(os.Args) > 1 {
		if val, err := strconv.Atoi(os.Args[1]); err == nil {
			pairs = val
		}
	}
	if len(os.Args) > 2 {
		if val, err := strconv.Atoi(os.Args[2]); err == nil {
			messages = val
		}
	}

	wsURL := "ws://localhost:3000/ws"
	if env := os.Getenv("BENCH_WS_URL"); env != "" {
		wsURL = env
	}

	fmt.Println("=== Alapio聊天服务压测 ===")
	fmt.Printf("开始时间: %s\n", time.Now().Format("2006-01-02 15:04:05"))

	mon := NewMonitor(1 * time.Second)
	mon.Start()

	runWSBench(wsURL, pairs, messages)

	mon.Stop()
	mon.GenerateReport()

	fmt.Println("\n=== 测试完成 ===")
}
