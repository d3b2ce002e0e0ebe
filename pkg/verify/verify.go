// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package verify submits contract sources to an Etherscan compatible
// explorer and waits for the verification result.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-semver/semver"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rafflekit/rafflekit/pkg/logging"
	"github.com/rafflekit/rafflekit/pkg/ratelimit"
)

const (
	DefaultURL = "https://api.etherscan.io/v2/api"

	// requests per second allowed for one API key
	requestsPerSecond = 5

	defaultPollInterval = 3 * time.Second
)

var (
	ErrVerificationFailed  = errors.New("verification failed")
	ErrUnsupportedCompiler = errors.New("unsupported compiler version")
	ErrMissingAPIKey       = errors.New("missing explorer api key")

	// MinCompilerVersion is the oldest compiler the raffle sources build with.
	MinCompilerVersion = semver.New("0.8.0")
)

// Request describes the contract to verify.
type Request struct {
	Address common.Address
	// ContractName is the fully qualified name, like contracts/Raffle.sol:Raffle.
	ContractName    string
	CompilerVersion string
	// ConstructorArgs are the ABI encoded constructor arguments.
	ConstructorArgs []byte
	// Source is the solc standard JSON input.
	Source json.RawMessage
}

type Options struct {
	URL          string
	HTTPClient   *http.Client
	PollInterval time.Duration
	Limiter      *ratelimit.Limiter
}

// Client talks to the explorer API of one chain.
type Client struct {
	logger       logging.Logger
	url          string
	apiKey       string
	chainID      int64
	httpClient   *http.Client
	pollInterval time.Duration
	limiter      *ratelimit.Limiter
}

func New(logger logging.Logger, apiKey string, chainID int64, o Options) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if o.URL == "" {
		o.URL = DefaultURL
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if o.PollInterval == 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.Limiter == nil {
		o.Limiter = ratelimit.New(time.Second/requestsPerSecond, requestsPerSecond)
	}
	return &Client{
		logger:       logger,
		url:          o.URL,
		apiKey:       apiKey,
		chainID:      chainID,
		httpClient:   o.HTTPClient,
		pollInterval: o.PollInterval,
		limiter:      o.Limiter,
	}, nil
}

// CheckCompilerVersion fails for versions older than MinCompilerVersion.
func CheckCompilerVersion(version string) error {
	v, err := semver.NewVersion(strings.TrimPrefix(version, "v"))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnsupportedCompiler, version, err)
	}
	if v.LessThan(*MinCompilerVersion) {
		return fmt.Errorf("%w: %s is older than %s", ErrUnsupportedCompiler, version, MinCompilerVersion)
	}
	return nil
}

type response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

func isAlreadyVerified(result string) bool {
	return strings.Contains(strings.ToLower(result), "already verified")
}

// Verify submits the request and polls until the explorer accepts or
// rejects it. A contract that is already verified is not an error.
func (c *Client) Verify(ctx context.Context, r Request) error {
	if err := CheckCompilerVersion(r.CompilerVersion); err != nil {
		return err
	}

	c.logger.Infof("verifying contract %s at %s...", r.ContractName, r.Address)

	form := url.Values{}
	form.Set("module", "contract")
	form.Set("action", "verifysourcecode")
	form.Set("contractaddress", r.Address.Hex())
	form.Set("sourceCode", string(r.Source))
	form.Set("codeformat", "solidity-standard-json-input")
	form.Set("contractname", r.ContractName)
	form.Set("compilerversion", r.CompilerVersion)
	// sic
	form.Set("constructorArguements", common.Bytes2Hex(r.ConstructorArgs))

	res, err := c.do(ctx, http.MethodPost, form)
	if err != nil {
		return err
	}
	if res.Status != "1" {
		if isAlreadyVerified(res.Result) {
			c.logger.Info("contract already verified")
			return nil
		}
		return fmt.Errorf("%w: %s", ErrVerificationFailed, res.Result)
	}
	guid := res.Result
	c.logger.Debugf("verify: submitted %s, guid %s", r.Address, guid)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		done, err := c.checkStatus(ctx, guid)
		if err != nil {
			return err
		}
		if done {
			c.logger.Infof("verified contract %s at %s", r.ContractName, r.Address)
			return nil
		}
	}
}

// checkStatus returns true once the explorer verified the submission.
func (c *Client) checkStatus(ctx context.Context, guid string) (bool, error) {
	query := url.Values{}
	query.Set("module", "contract")
	query.Set("action", "checkverifystatus")
	query.Set("guid", guid)

	res, err := c.do(ctx, http.MethodGet, query)
	if err != nil {
		return false, err
	}
	switch {
	case isAlreadyVerified(res.Result):
		return true, nil
	case strings.HasPrefix(res.Result, "Pending"):
		c.logger.Debugf("verify: %s: %s", guid, res.Result)
		return false, nil
	case res.Status == "1":
		return true, nil
	default:
		return false, fmt.Errorf("%w: %s", ErrVerificationFailed, res.Result)
	}
}

func (c *Client) do(ctx context.Context, method string, values url.Values) (*response, error) {
	if err := c.limiter.Wait(ctx, c.apiKey); err != nil {
		return nil, err
	}

	values.Set("apikey", c.apiKey)
	values.Set("chainid", strconv.FormatInt(c.chainID, 10))

	var (
		req *http.Request
		err error
	)
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, method, c.url, strings.NewReader(values.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.url+"?"+values.Encode(), nil)
	}
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("explorer responded %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	res := new(response)
	if err := json.NewDecoder(resp.Body).Decode(res); err != nil {
		return nil, fmt.Errorf("decode explorer response: %w", err)
	}
	return res, nil
}
