// credchain-casd serves a local filesystem CAS over gRPC so credchain nodes
// can archive their chains to shared storage.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"google.golang.org/grpc"

	"github.com/credchain/credchain/storage/grpccas"
	"github.com/credchain/credchain/storage/localfs"
)

func main() {
	fs := flag.NewFlagSet("credchain-casd", flag.ExitOnError)
	listen := fs.String("listen", "127.0.0.1:7530", "listen address")
	dir := fs.String("dir", "", "CAS root directory (default ~/.credchain/cas)")

	_ = fs.Parse(os.Args[1:])

	root := *dir
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		root = filepath.Join(home, ".credchain", "cas")
	}

	cas, err := localfs.New(root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer lis.Close()

	s := grpc.NewServer()
	grpccas.RegisterCASServer(s, &grpccas.Server{CAS: cas})

	fmt.Fprintf(os.Stderr, "credchain-casd listening on %s (dir=%s)\n", lis.Addr().String(), root)
	if err := s.Serve(lis); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
