// Command emberctl sends one command-surface op to a running emberd
// and prints the JSON response, mirroring the teacher's cmd/vox-ctl
// trigger-and-print shape generalized to the full op/args surface. It
// also offers enroll-file/verify-file, which decode a WAV/MP3/Ogg file
// through pkg/audioconv instead of a live microphone capture — useful
// for scripted enrollment/verification against a fixture recording.
package main

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"

	cli "github.com/spf13/pflag"

	"ember/internal/control"
	"ember/pkg/audioconv"
)

func main() {
	sockPath := cli.StringP("socket", "s", control.DefaultSocketPath, "Command surface unix socket path")
	argsJSON := cli.StringP("args", "a", "", "JSON object of arguments for the op")
	cli.Parse()

	if cli.NArg() < 1 {
		usage()
		os.Exit(2)
	}
	op := cli.Arg(0)

	switch op {
	case "enroll-file":
		runFileOp(*sockPath, "enroll_add_sample", requireArgs(3))
	case "verify-file":
		runFileOp(*sockPath, "verify_speaker", requireArgs(3))
	default:
		runOp(*sockPath, op, *argsJSON)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: emberctl [-s socket] [-a '{\"json\":\"args\"}'] <op>")
	fmt.Fprintln(os.Stderr, "       emberctl [-s socket] enroll-file <user> <audio-file>")
	fmt.Fprintln(os.Stderr, "       emberctl [-s socket] verify-file <user> <audio-file>")
}

func requireArgs(n int) []string {
	if cli.NArg() < n {
		usage()
		os.Exit(2)
	}
	return []string{cli.Arg(1), cli.Arg(2)}
}

// runFileOp decodes args[1] (an audio file path) to 16kHz mono PCM16
// and sends it to op alongside the user id in args[0].
func runFileOp(sockPath, op string, fileArgs []string) {
	user, path := fileArgs[0], fileArgs[1]

	samples, err := audioconv.ConvertFileToPCM16k(context.Background(), path, audioconv.Options{})
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to decode audio file:", err)
		os.Exit(1)
	}

	pcm16 := encodePCM16(samples)
	args := map[string]string{"user": user, "pcm16": pcm16}

	resp, err := control.SendCommand(sockPath, op, args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "emberd not reachable:", err)
		os.Exit(1)
	}
	printResponse(resp)
}

func runOp(sockPath, op, argsJSON string) {
	var args any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			fmt.Fprintln(os.Stderr, "malformed --args:", err)
			os.Exit(2)
		}
	}

	resp, err := control.SendCommand(sockPath, op, args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "emberd not reachable:", err)
		os.Exit(1)
	}
	printResponse(resp)
}

func printResponse(resp control.Response) {
	out, _ := json.MarshalIndent(resp, "", "  ")
	fmt.Println(string(out))
	if !resp.OK {
		os.Exit(1)
	}
}

func encodePCM16(samples []float32) string {
	raw := make([]byte, len(samples)*2)
	for i, f := range samples {
		v := int16(f * 32768.0)
		binary.LittleEndian.PutUint16(raw[2*i:], uint16(v))
	}
	return base64.StdEncoding.EncodeToString(raw)
}
