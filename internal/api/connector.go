package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"crypto-backtester/internal/model"
	"crypto-backtester/internal/service"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultReconnectDelay = 5 * time.Second
	// OKX 30 秒无数据会断开连接
	pingInterval = 25 * time.Second
)

// OkxWsData 适用于 Okx V5 的通用响应结构
type OkxWsData struct {
	Arg struct {
		Channel string `json:"channel"`
		InstId  string `json:"instId"`
	} `json:"arg"`
	Data  json.RawMessage `json:"data"` // 按频道延迟解析
	Event string          `json:"event"`
	Msg   string          `json:"msg"`
}

// CandleEvent 一根已收盘的 K 线，用于触发重新回测
type CandleEvent struct {
	Symbol    string
	Timeframe string
	Candle    model.Candle
}

// 映射 InstId 到 Symbol (例如 SOL-USDT-SWAP -> SOL/USDT)
type InstMap map[string]string

// Connector 订阅 OKX candle 频道，K 线确认收盘时发出触发事件
type Connector struct {
	wsURL          string
	timeframe      string
	channel        string
	instToSymbol   InstMap
	triggers       chan CandleEvent
	reconnectDelay time.Duration
	logger         *zap.Logger
}

func NewConnector(wsURL, timeframe string, symbols []string, logger *zap.Logger) *Connector {
	instToSymbol := make(InstMap, len(symbols))
	for _, symbol := range symbols {
		instToSymbol[SymbolToInstID(symbol)] = symbol
	}

	logger.Info("Connector initialized", zap.Strings("Symbols", symbols), zap.String("Timeframe", timeframe))

	return &Connector{
		wsURL:          wsURL,
		timeframe:      timeframe,
		channel:        CandleChannel(timeframe),
		instToSymbol:   instToSymbol,
		triggers:       make(chan CandleEvent, 64),
		reconnectDelay: defaultReconnectDelay,
		logger:         logger,
	}
}

// SymbolToInstID "SOL/USDT" -> "SOL-USDT-SWAP"
func SymbolToInstID(symbol string) string {
	return strings.ReplaceAll(service.NormalizeSymbol(symbol), "/", "-") + "-SWAP"
}

// CandleChannel 将周期转换为 OKX 频道名: 15m -> candle15m, 1h -> candle1H, 1d -> candle1D
func CandleChannel(timeframe string) string {
	if n := len(timeframe); n > 0 {
		switch timeframe[n-1] {
		case 'h', 'd':
			timeframe = timeframe[:n-1] + strings.ToUpper(timeframe[n-1:])
		}
	}
	return "candle" + timeframe
}

// Triggers 收盘 K 线事件，通道满时丢弃
func (c *Connector) Triggers() <-chan CandleEvent {
	return c.triggers
}

// Start 连接并读取，断线后按 reconnectDelay 重连，直到 ctx 取消
func (c *Connector) Start(ctx context.Context) error {
	for {
		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Error("Error reading WS message, attempting to reconnect...",
			zap.Error(err), zap.Duration("Delay", c.reconnectDelay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.reconnectDelay):
		}
	}
}

func (c *Connector) runOnce(ctx context.Context) error {
	c.logger.Info("Starting Okx WS candle connection...", zap.String("URL", c.wsURL))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	args := make([]map[string]string, 0, len(c.instToSymbol))
	for instID := range c.instToSymbol {
		args = append(args, map[string]string{"channel": c.channel, "instId": instID})
	}
	subscribeMsg := map[string]interface{}{
		"op":   "subscribe",
		"args": args,
	}
	if err := conn.WriteJSON(subscribeMsg); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	c.logger.Info("Subscribed to Okx candle streams", zap.String("Channel", c.channel))

	done := make(chan struct{})
	defer close(done)
	go c.keepAlive(ctx, conn, done)

	return c.readLoop(conn)
}

// keepAlive 定期发送 ping，ctx 取消时关闭连接使 readLoop 退出
func (c *Connector) keepAlive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				c.logger.Warn("WS ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (c *Connector) readLoop(conn *websocket.Conn) error {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if string(message) == "pong" {
			continue
		}

		var wsResp OkxWsData
		if err := json.Unmarshal(message, &wsResp); err != nil {
			continue
		}

		switch wsResp.Event {
		case "":
		case "error":
			c.logger.Error("Okx WS error event", zap.String("Msg", wsResp.Msg))
			continue
		default:
			continue // 忽略订阅成功等事件
		}

		symbol, ok := c.instToSymbol[wsResp.Arg.InstId]
		if !ok || wsResp.Arg.Channel != c.channel || len(wsResp.Data) == 0 {
			continue
		}

		var rows [][]string
		if err := json.Unmarshal(wsResp.Data, &rows); err != nil {
			c.logger.Error("Candle data unmarshal error", zap.Error(err))
			continue
		}

		for _, row := range rows {
			candle, confirmed, err := parseCandleRow(row)
			if err != nil {
				c.logger.Debug("Malformed candle row", zap.Strings("Row", row), zap.Error(err))
				continue
			}
			if !confirmed {
				continue
			}

			event := CandleEvent{Symbol: symbol, Timeframe: c.timeframe, Candle: candle}
			// 使用 select/default 防止阻塞 Connector
			select {
			case c.triggers <- event:
			default:
				c.logger.Warn("Trigger channel full! Dropping candle event for", zap.String("Symbol", symbol))
			}
		}
	}
}

// parseCandleRow 解析 [ts,o,h,l,c,vol,volCcy,volCcyQuote,confirm]
func parseCandleRow(row []string) (model.Candle, bool, error) {
	if len(row) < 9 {
		return model.Candle{}, false, fmt.Errorf("want 9 fields, got %d", len(row))
	}
	ts, err := service.StringToInt64(row[0])
	if err != nil {
		return model.Candle{}, false, err
	}

	c := model.Candle{Timestamp: time.UnixMilli(ts).UTC()}
	for i, dst := range []*float64{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume} {
		if *dst, err = service.StringToFloat(row[i+1]); err != nil {
			return model.Candle{}, false, err
		}
	}
	return c, row[8] == "1", nil
}
