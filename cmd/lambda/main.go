//go:build !lambda

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	body, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	resp, _ := handler(context.Background(), events.LambdaFunctionURLRequest{Body: string(body)})
	fmt.Println(resp.Body)
	if resp.StatusCode != 200 {
		os.Exit(1)
	}
}
