package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

// flags
var (
	urlFlag = &cli.StringFlag{
		Name:  "url",
		Usage: "the url of the raffle daemon",
		Value: "http://localhost:7070",
	}
	playerFlag = &cli.StringFlag{
		Name:     "player",
		Usage:    "the account entering the raffle",
		Required: true,
	}
	amountFlag = &cli.StringFlag{
		Name:     "amount",
		Usage:    "the amount in base units paid to enter",
		Required: true,
	}
	dataFlag = &cli.StringFlag{
		Name:  "data",
		Usage: "hex encoded opaque data passed to the upkeep",
	}
	performFlag = &cli.BoolFlag{
		Name:  "perform",
		Usage: "perform the upkeep instead of just checking it",
	}
	indexFlag = &cli.IntFlag{
		Name:     "index",
		Usage:    "the index of the player in the current round",
		Required: true,
	}
	roundIdFlag = &cli.Uint64Flag{
		Name:  "id",
		Usage: "the id of the round, all settled rounds are listed if omitted",
	}
	accountFlag = &cli.StringFlag{
		Name:     "account",
		Usage:    "the account to get the balance of",
		Required: true,
	}
	requestIdFlag = &cli.StringFlag{
		Name:     "request-id",
		Usage:    "the id of the randomness request to fulfill",
		Required: true,
	}
	wordsFlag = &cli.StringSliceFlag{
		Name:     "word",
		Usage:    "a decimal random word, can be repeated",
		Required: true,
	}
	tokenFlag = &cli.StringFlag{
		Name:    "token",
		Usage:   "the fulfiller token",
		EnvVars: []string{"RAFFLE_FULFILLER_TOKEN"},
	}
)

// commands
var (
	enterCmd = &cli.Command{
		Name:   "enter",
		Usage:  "Enter the current round",
		Action: enterAction,
		Flags:  []cli.Flag{playerFlag, amountFlag},
	}
	statusCmd = &cli.Command{
		Name:   "status",
		Usage:  "Get info about the status of the raffle",
		Action: statusAction,
	}
	upkeepCmd = &cli.Command{
		Name:   "upkeep",
		Usage:  "Check or perform the upkeep that starts a draw",
		Action: upkeepAction,
		Flags:  []cli.Flag{dataFlag, performFlag},
	}
	playerCmd = &cli.Command{
		Name:   "player",
		Usage:  "Get a player of the current round",
		Action: playerAction,
		Flags:  []cli.Flag{indexFlag},
	}
	roundCmd = &cli.Command{
		Name:   "round",
		Usage:  "Get a settled round or list them all",
		Action: roundAction,
		Flags:  []cli.Flag{roundIdFlag},
	}
	balanceCmd = &cli.Command{
		Name:   "balance",
		Usage:  "Get the prizes balance of an account",
		Action: balanceAction,
		Flags:  []cli.Flag{accountFlag},
	}
	fulfillCmd = &cli.Command{
		Name:   "fulfill",
		Usage:  "Deliver the random words of a pending request",
		Action: fulfillAction,
		Flags:  []cli.Flag{requestIdFlag, wordsFlag, tokenFlag},
	}
)

func enterAction(ctx *cli.Context) error {
	url := fmt.Sprintf("%s/v1/raffle/enter", ctx.String("url"))
	body, err := json.Marshal(map[string]string{
		"player": ctx.String("player"),
		"amount": ctx.String("amount"),
	})
	if err != nil {
		return err
	}
	if _, err := post[struct{}](url, string(body), "", ""); err != nil {
		return err
	}

	fmt.Println("entered raffle")
	return nil
}

func statusAction(ctx *cli.Context) error {
	url := fmt.Sprintf("%s/v1/raffle/info", ctx.String("url"))
	info, err := get[map[string]interface{}](url, "")
	if err != nil {
		return err
	}
	return printJSON(info)
}

func upkeepAction(ctx *cli.Context) error {
	baseURL := ctx.String("url")
	data := ctx.String("data")

	if ctx.Bool("perform") {
		url := fmt.Sprintf("%s/v1/raffle/upkeep", baseURL)
		body, err := json.Marshal(map[string]string{"data": data})
		if err != nil {
			return err
		}
		requestId, err := post[string](url, string(body), "requestId", "")
		if err != nil {
			return err
		}
		fmt.Printf("requested draw %s\n", requestId)
		return nil
	}

	url := fmt.Sprintf("%s/v1/raffle/upkeep?data=%s", baseURL, data)
	needed, err := get[bool](url, "upkeepNeeded")
	if err != nil {
		return err
	}
	fmt.Printf("upkeep needed: %t\n", needed)
	return nil
}

func playerAction(ctx *cli.Context) error {
	url := fmt.Sprintf("%s/v1/raffle/players/%d", ctx.String("url"), ctx.Int("index"))
	player, err := get[string](url, "player")
	if err != nil {
		return err
	}

	fmt.Println(player)
	return nil
}

func roundAction(ctx *cli.Context) error {
	baseURL := ctx.String("url")
	if !ctx.IsSet("id") {
		url := fmt.Sprintf("%s/v1/rounds", baseURL)
		ids, err := get[[]uint64](url, "rounds")
		if err != nil {
			return err
		}
		return printJSON(ids)
	}

	url := fmt.Sprintf("%s/v1/rounds/%d", baseURL, ctx.Uint64("id"))
	round, err := get[map[string]interface{}](url, "")
	if err != nil {
		return err
	}
	return printJSON(round)
}

func balanceAction(ctx *cli.Context) error {
	url := fmt.Sprintf("%s/v1/wallet/%s", ctx.String("url"), ctx.String("account"))
	balance, err := get[string](url, "balance")
	if err != nil {
		return err
	}

	fmt.Println(balance)
	return nil
}

func fulfillAction(ctx *cli.Context) error {
	url := fmt.Sprintf("%s/v1/raffle/fulfill", ctx.String("url"))
	body, err := json.Marshal(map[string]interface{}{
		"requestId":   ctx.String("request-id"),
		"randomWords": ctx.StringSlice("word"),
	})
	if err != nil {
		return err
	}
	if _, err := post[struct{}](url, string(body), "", ctx.String("token")); err != nil {
		return err
	}

	fmt.Println("request fulfilled")
	return nil
}

func post[T any](url, body, key, token string) (result T, err error) {
	req, err := http.NewRequest("POST", url, strings.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Add("Content-Type", "application/json")
	if len(token) > 0 {
		req.Header.Add("Authorization", "Bearer "+token)
	}
	return do[T](req, key)
}

func get[T any](url, key string) (result T, err error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return
	}
	req.Header.Add("Content-Type", "application/json")
	return do[T](req, key)
}

// do sends the request and decodes either the whole response or, if key is
// set, only the value of the given field.
func do[T any](req *http.Request, key string) (result T, err error) {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return
	}
	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("failed to %s: %s", strings.ToLower(req.Method), string(buf))
		return
	}

	if key == "" {
		if len(buf) > 0 {
			err = json.Unmarshal(buf, &result)
		}
		return
	}

	res := make(map[string]T)
	if err = json.Unmarshal(buf, &res); err != nil {
		return
	}
	result = res[key]
	return
}

func printJSON(v interface{}) error {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(buf))
	return nil
}
