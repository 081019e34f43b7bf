// MIT License
//
// Copyright (c) 2016-2017 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Command lhclient is a small operational tool for driving a longhorn
// replica socket by hand: open a connection and issue one read, write,
// or unmap, printing the result. It exists to exercise the library's
// public surface from a CLI, the way xtaci-kcptun/client drives smux
// and kcp-go from its own cli.App; the library itself carries no
// configuration loader or flag parsing (spec.md's Non-goals exclude
// that from the core).
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/rancher/liblonghorn"
)

// VERSION is injected by build flags.
var VERSION = "SELFBUILD"

func main() {
	app := cli.NewApp()
	app.Name = "lhclient"
	app.Usage = "drive a longhorn replica socket by hand"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "socket, s",
			Usage: "path to the replica's UNIX domain socket",
		},
		cli.Int64Flag{
			Name:  "offset, o",
			Usage: "byte offset into the volume",
		},
		cli.IntFlag{
			Name:  "length, n",
			Usage: "length in bytes (read-at/unmap); write-at takes its length from --data",
		},
		cli.StringFlag{
			Name:  "data, d",
			Usage: "hex-encoded payload for a write",
		},
		cli.DurationFlag{
			Name:  "timeout, t",
			Value: longhorn.DefaultRequestTimeout,
			Usage: "shared request deadline",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "read-at",
			Usage:  "lhclient --socket PATH --offset N --length N read-at",
			Action: runReadAt,
		},
		{
			Name:   "write-at",
			Usage:  "lhclient --socket PATH --offset N --data HEX write-at",
			Action: runWriteAt,
		},
		{
			Name:   "unmap",
			Usage:  "lhclient --socket PATH --offset N --length N unmap",
			Action: runUnmap,
		},
	}

	if err := app.Run(os.Args); err != nil {
		color.Red("lhclient: %v", err)
		os.Exit(1)
	}
}

func open(c *cli.Context) (*longhorn.Connection, error) {
	socketPath := c.GlobalString("socket")
	if socketPath == "" {
		return nil, errors.New("--socket is required")
	}
	timeout := c.GlobalDuration("timeout")
	if timeout <= 0 {
		timeout = longhorn.DefaultRequestTimeout
	}
	return longhorn.Open(socketPath, longhorn.WithRequestTimeout(timeout))
}

func runReadAt(c *cli.Context) error {
	conn, err := open(c)
	if err != nil {
		return err
	}
	defer conn.Close()

	length := c.GlobalInt("length")
	offset := c.GlobalInt64("offset")
	buf := make([]byte, length)

	start := time.Now()
	if err := conn.ReadAt(buf, offset); err != nil {
		color.Red("read-at failed: %v", err)
		return err
	}
	color.Green("read-at offset=%d length=%d took=%s", offset, length, time.Since(start))
	fmt.Println(hex.EncodeToString(buf))
	return nil
}

func runWriteAt(c *cli.Context) error {
	conn, err := open(c)
	if err != nil {
		return err
	}
	defer conn.Close()

	data, err := hex.DecodeString(c.GlobalString("data"))
	if err != nil {
		return errors.Wrap(err, "--data must be hex-encoded")
	}
	offset := c.GlobalInt64("offset")

	start := time.Now()
	if err := conn.WriteAt(data, offset); err != nil {
		color.Red("write-at failed: %v", err)
		return err
	}
	color.Green("write-at offset=%d length=%d took=%s", offset, len(data), time.Since(start))
	return nil
}

func runUnmap(c *cli.Context) error {
	conn, err := open(c)
	if err != nil {
		return err
	}
	defer conn.Close()

	length := uint32(c.GlobalInt("length"))
	offset := c.GlobalInt64("offset")

	start := time.Now()
	if err := conn.Unmap(length, offset); err != nil {
		color.Red("unmap failed: %v", err)
		return err
	}
	color.Green("unmap offset=%d length=%d took=%s", offset, length, time.Since(start))
	return nil
}
