package p2p

import (
	"bufio"
	"encoding/json"
	"net"
	"sync/atomic"
	"time"

	"arkchain/core/types"
)

// Client is the typed RPC surface over one remote peer. Calls are not safe
// for concurrent use; the owning Connection serializes them through its
// modification lock. Every method may fail with a network error on transport
// loss, timeout or a malformed response.
type Client interface {
	GetInfo() (Info, error)
	SendTransactions(txs []*types.Transaction) error
	SendBlock(block *types.Block) error
	GetUnconfirmedTransactions() ([]*types.Transaction, error)
	GetBlock(height uint64, id string) (*types.Block, error)
	GetBlocks(start, end uint64) ([]*types.Block, error)
	Stats() PeerStats
	Close() error
}

const (
	clientWriteTimeout = 5 * time.Second
	clientReadTimeout  = 90 * time.Second
)

type rpcRequest struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type sendTransactionsParams struct {
	Transactions []*types.Transaction `json:"transactions"`
}

type sendBlockParams struct {
	Block *types.Block `json:"block"`
}

type getBlockParams struct {
	Height uint64 `json:"height"`
	ID     string `json:"id"`
}

type getBlocksParams struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

// jsonClient speaks newline-delimited JSON request/response frames over a
// single TCP connection.
type jsonClient struct {
	conn   net.Conn
	reader *bufio.Reader
	nextID uint64

	incoming       bool
	connectedSince time.Time
	bytesIn        atomic.Uint64
	bytesOut       atomic.Uint64
	latencyNS      atomic.Int64
}

// NewClient wraps an established connection in the JSON-line RPC codec.
func NewClient(conn net.Conn, incoming bool) Client {
	return &jsonClient{
		conn:           conn,
		reader:         bufio.NewReader(conn),
		incoming:       incoming,
		connectedSince: time.Now(),
	}
}

func (c *jsonClient) call(method string, params any, result any) error {
	c.nextID++
	req := rpcRequest{ID: c.nextID, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return netErrorf("encode %s params: %v", method, err)
		}
		req.Params = raw
	}
	frame, err := json.Marshal(req)
	if err != nil {
		return netErrorf("encode %s request: %v", method, err)
	}
	frame = append(frame, '\n')

	started := time.Now()
	if err := c.conn.SetWriteDeadline(started.Add(clientWriteTimeout)); err != nil {
		return netErrorf("set write deadline: %v", err)
	}
	n, err := c.conn.Write(frame)
	c.bytesOut.Add(uint64(n))
	if err != nil {
		return netErrorf("write %s: %v", method, err)
	}

	if err := c.conn.SetReadDeadline(started.Add(clientReadTimeout)); err != nil {
		return netErrorf("set read deadline: %v", err)
	}
	line, err := c.reader.ReadBytes('\n')
	c.bytesIn.Add(uint64(len(line)))
	if err != nil {
		return netErrorf("read %s response: %v", method, err)
	}
	c.observeLatency(time.Since(started))

	var resp rpcResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return netErrorf("decode %s response: %v", method, err)
	}
	if resp.ID != req.ID {
		return netErrorf("%s response id mismatch: got %d want %d", method, resp.ID, req.ID)
	}
	if resp.Error != "" {
		return netErrorf("%s: remote error: %s", method, resp.Error)
	}
	if result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return netErrorf("decode %s result: %v", method, err)
		}
	}
	return nil
}

func (c *jsonClient) observeLatency(sample time.Duration) {
	// EWMA with alpha 0.2.
	prev := c.latencyNS.Load()
	if prev <= 0 {
		c.latencyNS.Store(int64(sample))
		return
	}
	c.latencyNS.Store(int64(0.2*float64(sample) + 0.8*float64(prev)))
}

func (c *jsonClient) GetInfo() (Info, error) {
	var info Info
	if err := c.call("getInfo", nil, &info); err != nil {
		return nil, err
	}
	if info == nil {
		return nil, netErrorf("getInfo: empty result")
	}
	return info, nil
}

func (c *jsonClient) SendTransactions(txs []*types.Transaction) error {
	return c.call("sendTransactions", sendTransactionsParams{Transactions: txs}, nil)
}

func (c *jsonClient) SendBlock(block *types.Block) error {
	return c.call("sendBlock", sendBlockParams{Block: block}, nil)
}

func (c *jsonClient) GetUnconfirmedTransactions() ([]*types.Transaction, error) {
	var txs []*types.Transaction
	if err := c.call("getUnconfirmedTransactions", nil, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

func (c *jsonClient) GetBlock(height uint64, id string) (*types.Block, error) {
	block := &types.Block{}
	if err := c.call("getBlock", getBlockParams{Height: height, ID: id}, block); err != nil {
		return nil, err
	}
	return block, nil
}

func (c *jsonClient) GetBlocks(start, end uint64) ([]*types.Block, error) {
	var blocks []*types.Block
	if err := c.call("getBlocks", getBlocksParams{Start: start, End: end}, &blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

func (c *jsonClient) Stats() PeerStats {
	return PeerStats{
		BytesReceived:  c.bytesIn.Load(),
		BytesSent:      c.bytesOut.Load(),
		Latency:        time.Duration(c.latencyNS.Load()),
		Incoming:       c.incoming,
		ConnectedSince: c.connectedSince,
	}
}

func (c *jsonClient) Close() error {
	return c.conn.Close()
}
