// Package chain abstracts a single EVM chain endpoint: subscribing to
// Deposit logs, reading chain state, and submitting signed bridge
// transactions, per spec.md §4.2.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// resubscribeBackoff is the minimum interval between subscribe-logs
// retries, per spec.md §4.2/§4.3's "back-off retry of >=60s".
const resubscribeBackoff = 60 * time.Second

// Client wraps an ethclient.Client bound to one chain and one signer,
// per spec.md §5's "each signer/client object is bound to one chain".
type Client struct {
	ChainID       string // the spec.md chain_id key, e.g. "A" or "B"
	eth           *ethclient.Client
	numericChain  *big.Int
	privateKey    *ecdsa.PrivateKey
	fromAddress   common.Address
	bridgeAddress common.Address
	tokenAddress  common.Address
	logger        *log.Logger
}

// NewClient dials an EVM chain endpoint and binds it to the given
// signer and bridge/token addresses.
func NewClient(chainID, wsURL string, numericChainID int64, bridgeAddress, tokenAddress common.Address, privateKeyHex string) (*Client, error) {
	eth, err := ethclient.Dial(wsURL)
	if err != nil {
		return nil, fmt.Errorf("chain %s: failed to connect: %w", chainID, err)
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("chain %s: failed to parse private key: %w", chainID, err)
	}
	publicKeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("chain %s: failed to derive public key", chainID)
	}

	return &Client{
		ChainID:       chainID,
		eth:           eth,
		numericChain:  big.NewInt(numericChainID),
		privateKey:    privateKey,
		fromAddress:   crypto.PubkeyToAddress(*publicKeyECDSA),
		bridgeAddress: bridgeAddress,
		tokenAddress:  tokenAddress,
		logger:        log.New(log.Writer(), fmt.Sprintf("[Chain:%s] ", chainID), log.LstdFlags),
	}, nil
}

// TokenAddress returns this chain's configured bridge token.
func (c *Client) TokenAddress() common.Address { return c.tokenAddress }

// Close releases the underlying RPC connection.
func (c *Client) Close() { c.eth.Close() }

// HeadBlock returns the chain's current tip height.
func (c *Client) HeadBlock(ctx context.Context) (uint64, error) {
	header, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("chain %s: failed to read head block: %w", c.ChainID, err)
	}
	return header.Number.Uint64(), nil
}

// SubscribeDeposits returns a channel of decoded Deposit logs filtered
// to this chain's bridge contract and configured token, starting from
// fromBlock. It first drains the historical backlog via FilterLogs,
// then forwards live logs from a persistent subscription; subscription
// loss or failure triggers a resubscribe after resubscribeBackoff,
// indefinitely, until ctx is cancelled. The channel is closed when ctx
// is done.
func (c *Client) SubscribeDeposits(ctx context.Context, fromBlock uint64) (<-chan DepositLog, error) {
	out := make(chan DepositLog, 256)

	query := ethereum.FilterQuery{
		Addresses: []common.Address{c.bridgeAddress},
		Topics: [][]common.Hash{
			{DepositEventSignature},
			{common.BytesToHash(c.tokenAddress.Bytes())},
		},
		FromBlock: new(big.Int).SetUint64(fromBlock),
	}

	go c.runSubscription(ctx, query, out)
	return out, nil
}

func (c *Client) runSubscription(ctx context.Context, query ethereum.FilterQuery, out chan<- DepositLog) {
	defer close(out)

	// Drain the historical backlog once before entering the live loop.
	if err := c.emitPastLogs(ctx, query, out); err != nil {
		c.logger.Printf("failed to fetch historical logs: %v", err)
	}

	for {
		if ctx.Err() != nil {
			return
		}

		logCh := make(chan types.Log, 256)
		var sub ethereum.Subscription
		err := backoff.Retry(func() error {
			s, subErr := c.eth.SubscribeFilterLogs(ctx, query, logCh)
			if subErr != nil {
				c.logger.Printf("subscribe failed, retrying in %s: %v", resubscribeBackoff, subErr)
				return subErr
			}
			sub = s
			return nil
		}, backoff.WithContext(backoff.NewConstantBackOff(resubscribeBackoff), ctx))
		if err != nil {
			// ctx was cancelled while retrying.
			return
		}

		c.consumeSubscription(ctx, sub, logCh, out, &query)

		if ctx.Err() != nil {
			return
		}
		c.logger.Printf("log subscription dropped, resubscribing in %s", resubscribeBackoff)
		select {
		case <-time.After(resubscribeBackoff):
		case <-ctx.Done():
			return
		}
	}
}

// consumeSubscription forwards logs until the subscription errors or
// ctx is cancelled, advancing query.FromBlock to each arriving log's block
// so a subsequent resubscribe starts from the last block seen rather than
// the original start block. That block is included again, so its logs
// may be redelivered.
func (c *Client) consumeSubscription(ctx context.Context, sub ethereum.Subscription, logCh chan types.Log, out chan<- DepositLog, query *ethereum.FilterQuery) {
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				c.logger.Printf("subscription error: %v", err)
			}
			return
		case l := <-logCh:
			query.FromBlock = new(big.Int).SetUint64(l.BlockNumber)
			dep, err := decodeDepositLog(l)
			if err != nil {
				c.logger.Printf("failed to decode deposit log: %v", err)
				continue
			}
			select {
			case out <- dep:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *Client) emitPastLogs(ctx context.Context, query ethereum.FilterQuery, out chan<- DepositLog) error {
	logs, err := c.eth.FilterLogs(ctx, query)
	if err != nil {
		return err
	}
	for _, l := range logs {
		dep, err := decodeDepositLog(l)
		if err != nil {
			c.logger.Printf("failed to decode historical deposit log: %v", err)
			continue
		}
		select {
		case out <- dep:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func decodeDepositLog(l types.Log) (DepositLog, error) {
	if len(l.Topics) < 2 {
		return DepositLog{}, fmt.Errorf("deposit log missing token topic")
	}
	if (l.TxHash == common.Hash{}) {
		return DepositLog{}, fmt.Errorf("deposit log has no transaction hash")
	}

	vals, err := BridgeABI.Events["Deposit"].Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return DepositLog{}, fmt.Errorf("failed to unpack deposit data: %w", err)
	}
	if len(vals) != 4 {
		return DepositLog{}, fmt.Errorf("unexpected deposit field count: %d", len(vals))
	}

	from, ok := vals[0].(common.Address)
	if !ok {
		return DepositLog{}, fmt.Errorf("deposit field 0 not an address")
	}
	to, ok := vals[1].(common.Address)
	if !ok {
		return DepositLog{}, fmt.Errorf("deposit field 1 not an address")
	}
	amount, ok := vals[2].(*big.Int)
	if !ok {
		return DepositLog{}, fmt.Errorf("deposit field 2 not a uint256")
	}
	nonce, ok := vals[3].(*big.Int)
	if !ok {
		return DepositLog{}, fmt.Errorf("deposit field 3 not a uint256")
	}

	return DepositLog{
		Token:       common.BytesToAddress(l.Topics[1].Bytes()),
		From:        from,
		To:          to,
		Amount:      amount,
		Nonce:       nonce,
		TxHash:      l.TxHash,
		BlockNumber: l.BlockNumber,
	}, nil
}

// CallProcessedDeposits reports whether nonce has already been
// distributed on this chain.
func (c *Client) CallProcessedDeposits(ctx context.Context, nonce *big.Int) (bool, error) {
	data, err := BridgeABI.Pack("processedDeposits", nonce)
	if err != nil {
		return false, fmt.Errorf("failed to pack processedDeposits call: %w", err)
	}

	result, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.bridgeAddress, Data: data}, nil)
	if err != nil {
		return false, fmt.Errorf("processedDeposits call failed: %w", err)
	}

	outputs, err := BridgeABI.Unpack("processedDeposits", result)
	if err != nil {
		return false, fmt.Errorf("failed to unpack processedDeposits result: %w", err)
	}
	processed, ok := outputs[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected processedDeposits return type")
	}
	return processed, nil
}

// SendDistribute submits a signed distribute(token, to, amount, nonce)
// transaction and returns it unconfirmed; call Await to wait for the
// receipt.
func (c *Client) SendDistribute(ctx context.Context, token, to common.Address, amount, nonce *big.Int) (*types.Transaction, error) {
	return c.sendBridgeCall(ctx, "distribute", token, to, amount, nonce)
}

// SendPause submits a best-effort pause() call to the bridge contract.
func (c *Client) SendPause(ctx context.Context) (*types.Transaction, error) {
	return c.sendBridgeCall(ctx, "pause")
}

// SendUnpause submits a best-effort unpause() call to the bridge contract.
func (c *Client) SendUnpause(ctx context.Context) (*types.Transaction, error) {
	return c.sendBridgeCall(ctx, "unpause")
}

func (c *Client) sendBridgeCall(ctx context.Context, method string, params ...interface{}) (*types.Transaction, error) {
	data, err := BridgeABI.Pack(method, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.fromAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to get account nonce: %w", err)
	}

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From: c.fromAddress,
		To:   &c.bridgeAddress,
		Data: data,
	})
	if err != nil {
		gasLimit = 200_000 // conservative fallback if estimation itself fails
	}

	tx := types.NewTransaction(nonce, c.bridgeAddress, big.NewInt(0), gasLimit, gasPrice, data)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(c.numericChain), c.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign %s transaction: %w", method, err)
	}

	if err := c.eth.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("failed to send %s transaction: %w", method, err)
	}
	return signedTx, nil
}

// Await waits for tx to be mined and returns its receipt.
func (c *Client) Await(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to await transaction %s: %w", tx.Hash().Hex(), err)
	}
	return receipt, nil
}
