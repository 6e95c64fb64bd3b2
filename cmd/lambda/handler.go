// Command lambda serves tour optimisation behind an AWS Lambda Function URL.
// Built with -tags lambda it runs under the Lambda runtime; without the tag it
// reads one request body from stdin for local use.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/tidwall/gjson"

	"tourplan/internal/opt"
)

const maxLocations = 500

var jsonHeader = map[string]string{
	"Content-Type": "application/json",
}

type solveRequest struct {
	Matrix      opt.Matrix
	InitialTour opt.Tour
	Strategy    string
	Iterations  int
	Seed        int64
	Polish      bool
}

type solveResult struct {
	Tour        []int       `json:"tour"`
	Cost        float64     `json:"cost"`
	InitialCost float64     `json:"initialCost"`
	Seed        int64       `json:"seed"`
	Polished    bool        `json:"polished"`
	TimeMs      int64       `json:"timeMs"`
	Metrics     opt.Metrics `json:"metrics"`
}

// parseRequest reads the body with gjson so numeric fields are checked for
// type without a schema struct.
func parseRequest(body string) (solveRequest, error) {
	var req solveRequest
	if !gjson.Valid(body) {
		return req, errors.New("invalid JSON")
	}
	root := gjson.Parse(body)

	mx := root.Get("matrix")
	if !mx.IsArray() {
		return req, errors.New("missing matrix field")
	}
	rows := mx.Array()
	if len(rows) > maxLocations {
		return req, fmt.Errorf("%d locations exceeds the limit of %d", len(rows), maxLocations)
	}
	req.Matrix = make(opt.Matrix, len(rows))
	for i, row := range rows {
		if !row.IsArray() {
			return req, fmt.Errorf("matrix row %d is not an array", i)
		}
		cells := row.Array()
		req.Matrix[i] = make([]float64, len(cells))
		for j, c := range cells {
			if c.Type != gjson.Number {
				return req, fmt.Errorf("matrix[%d][%d] is not a number", i, j)
			}
			req.Matrix[i][j] = c.Float()
		}
	}

	if it := root.Get("initialTour"); it.Exists() {
		if !it.IsArray() {
			return req, errors.New("initialTour must be an array")
		}
		for k, v := range it.Array() {
			if v.Type != gjson.Number || v.Float() != float64(v.Int()) {
				return req, fmt.Errorf("initialTour[%d] is not an integer", k)
			}
			req.InitialTour = append(req.InitialTour, int(v.Int()))
		}
	}
	req.Strategy = root.Get("initialStrategy").String()
	req.Iterations = int(root.Get("iterations").Int())
	if req.Iterations < 0 || req.Iterations > 100000 {
		return req, fmt.Errorf("iterations must be within [0, 100000], got %d", req.Iterations)
	}
	req.Seed = 1
	if s := root.Get("seed"); s.Exists() {
		req.Seed = s.Int()
	}
	req.Polish = root.Get("polish").Bool()
	return req, nil
}

func handler(ctx context.Context, event events.LambdaFunctionURLRequest) (events.LambdaFunctionURLResponse, error) {
	body := event.Body
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return errResp(400, "invalid base64 body")
		}
		body = string(decoded)
	}

	req, err := parseRequest(body)
	if err != nil {
		return errResp(400, err.Error())
	}
	started := time.Now()
	sol, err := opt.Solve(ctx, req.Matrix, opt.SolveOptions{
		Options:  opt.Options{Iterations: req.Iterations, Seed: req.Seed},
		Initial:  req.InitialTour,
		Strategy: req.Strategy,
		Polish:   req.Polish,
	})
	if errors.Is(err, opt.ErrInvalidInput) {
		return errResp(422, err.Error())
	}
	if err != nil {
		return errResp(500, err.Error())
	}
	slog.InfoContext(ctx, "solved", "size", len(req.Matrix), "cost", sol.Cost, "iterations", sol.Metrics.Iterations)

	respJSON, _ := json.Marshal(solveResult{
		Tour:        []int(sol.Tour),
		Cost:        sol.Cost,
		InitialCost: sol.Metrics.InitialCost,
		Seed:        req.Seed,
		Polished:    sol.Polished,
		TimeMs:      time.Since(started).Milliseconds(),
		Metrics:     sol.Metrics,
	})
	return events.LambdaFunctionURLResponse{StatusCode: 200, Headers: jsonHeader, Body: string(respJSON)}, nil
}

func errResp(code int, msg string) (events.LambdaFunctionURLResponse, error) {
	body, _ := json.Marshal(map[string]string{"error": msg})
	return events.LambdaFunctionURLResponse{StatusCode: code, Headers: jsonHeader, Body: string(body)}, nil
}
