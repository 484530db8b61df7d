package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/khanh101/paxoskv/pkg/paxos"
	"github.com/khanh101/paxoskv/pkg/rpc"
)

const SESSION_TIMEOUT = 10 * time.Second

// FILE_NAME - the replicated register shows up as a single file
const FILE_NAME = "value"

type KVRoot struct {
	fs.Inode
	session *rpc.Session
}

func (r *KVRoot) get() (*string, syscall.Errno) {
	res, err := r.session.Do(paxos.OpGet, nil, nil)
	if err != nil {
		return nil, syscall.EIO
	}
	switch res.Outcome {
	case paxos.OutcomeOk:
		return res.Value, 0
	case paxos.OutcomeNotFound:
		return nil, 0
	default:
		return nil, syscall.EIO
	}
}

func (r *KVRoot) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	v, errno := r.get()
	if errno != 0 {
		return nil, errno
	}
	entries := []fuse.DirEntry{}
	if v != nil {
		entries = append(entries, fuse.DirEntry{Name: FILE_NAME, Mode: fuse.S_IFREG})
	}
	return fs.NewListDirStream(entries), 0
}

func (r *KVRoot) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if name != FILE_NAME {
		return nil, syscall.ENOENT
	}
	v, errno := r.get()
	if errno != 0 {
		return nil, errno
	}
	if v == nil {
		return nil, syscall.ENOENT
	}
	child := r.NewPersistentInode(
		ctx,
		&KVFile{root: r},
		fs.StableAttr{Mode: syscall.S_IFREG},
	)
	return child, 0
}

func (r *KVRoot) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	if name != FILE_NAME {
		return nil, nil, 0, syscall.EPERM
	}
	empty := ""
	if res, err := r.session.Do(paxos.OpSet, nil, &empty); err != nil || res.Outcome != paxos.OutcomeOk {
		return nil, nil, 0, syscall.EIO
	}
	child := r.NewPersistentInode(
		ctx,
		&KVFile{root: r},
		fs.StableAttr{Mode: syscall.S_IFREG},
	)
	r.AddChild(name, child, false)
	return child, nil, fuse.FOPEN_DIRECT_IO, 0
}

func (r *KVRoot) Unlink(ctx context.Context, name string) syscall.Errno {
	if name != FILE_NAME {
		return syscall.ENOENT
	}
	res, err := r.session.Do(paxos.OpDel, nil, nil)
	if err != nil {
		return syscall.EIO
	}
	if res.Outcome == paxos.OutcomeNotFound {
		return syscall.ENOENT
	}
	return 0
}

type KVFile struct {
	fs.Inode
	root *KVRoot
}

func (f *KVFile) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	v, errno := f.root.get()
	if errno != 0 {
		return errno
	}
	out.Mode = 0644
	if v != nil {
		out.Size = uint64(len(*v))
	}
	return 0
}

func (f *KVFile) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	// direct io: every read observes the decided value, never a page cache
	return nil, fuse.FOPEN_DIRECT_IO, 0
}

func (f *KVFile) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	v, errno := f.root.get()
	if errno != 0 {
		return nil, errno
	}
	if v == nil {
		return nil, syscall.ENOENT
	}
	data := []byte(*v)
	if off >= int64(len(data)) {
		return fuse.ReadResultData(nil), 0
	}
	end := int(off) + len(dest)
	if end > len(data) {
		end = len(data)
	}
	return fuse.ReadResultData(data[off:end]), 0
}

func (f *KVFile) Write(ctx context.Context, fh fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	v, errno := f.root.get()
	if errno != 0 {
		return 0, errno
	}
	var buf []byte
	if v != nil {
		buf = []byte(*v)
	}
	newLen := int(off) + len(data)
	if newLen > len(buf) {
		newBuf := make([]byte, newLen)
		copy(newBuf, buf)
		buf = newBuf
	}
	copy(buf[off:], data)
	next := string(buf)
	if res, err := f.root.session.Do(paxos.OpSet, nil, &next); err != nil || res.Outcome != paxos.OutcomeOk {
		return 0, syscall.EIO
	}
	return uint32(len(data)), 0
}

func main() {
	configPath := flag.String("config", "config.json", "cluster config file")
	bind := flag.String("bind", "127.0.0.1:14100", "local rpc bind address for responses")
	debug := flag.Bool("debug", false, "print debug data")
	flag.Parse()
	if len(flag.Args()) < 1 {
		log.Fatal("Usage:\n  kvfuse [flags] MOUNTPOINT")
	}
	mountpoint := flag.Arg(0)

	b, err := os.ReadFile(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	var cl []struct {
		RPC string `json:"rpc"`
	}
	if err := json.Unmarshal(b, &cl); err != nil {
		log.Fatal(err)
	}
	proposerAddrs := make([]paxos.Addr, len(cl))
	for i, host := range cl {
		proposerAddrs[i] = paxos.Addr("proposer:" + host.RPC)
	}

	node := rpc.NewNode(rpc.RETRY_INTERVAL, rpc.Send)
	server, err := rpc.NewTCPServer(*bind, node)
	if err != nil {
		log.Fatal(err)
	}
	defer server.Close()
	go server.ListenAndServe()

	session := rpc.NewSession(node, *bind, proposerAddrs, SESSION_TIMEOUT)

	opts := &fs.Options{
		MountOptions: fuse.MountOptions{
			Debug: *debug,
		},
	}
	fuseServer, err := fs.Mount(mountpoint, &KVRoot{session: session}, opts)
	if err != nil {
		log.Fatalf("Mount fail: %v\n", err)
	}
	log.Printf("Mounted at %s\n", mountpoint)
	fuseServer.Wait()
}
