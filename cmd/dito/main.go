// Command dito manipulates FAT12 disk images: formatting, listing, reading
// and writing files, all without mounting anything through the kernel.
package main

import (
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path"

	"github.com/gocarina/gocsv"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"gopkg.in/djherbis/times.v1"

	"github.com/Zargontapel/dito"
	"github.com/Zargontapel/dito/converter"
	"github.com/Zargontapel/dito/disk"
	"github.com/Zargontapel/dito/filesystem"
	"github.com/Zargontapel/dito/util"
)

func main() {
	app := &cli.App{
		Name:  "dito",
		Usage: "inspect and manipulate FAT12 disk images",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "image",
				Aliases:  []string{"i"},
				Usage:    "path to the disk image or block device",
				Required: true,
			},
			&cli.IntFlag{
				Name:    "part",
				Aliases: []string{"p"},
				Usage:   "partition number, 0 for the whole disk",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				log.SetLevel(log.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "format",
				Usage:     "create a FAT12 filesystem on the image",
				ArgsUsage: " ",
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:  "size",
						Usage: "create the image file with this size in bytes first",
					},
				},
				Action: formatImage,
			},
			{
				Name:   "info",
				Usage:  "show volume geometry and free space",
				Action: showInfo,
			},
			{
				Name:   "probe",
				Usage:  "identify the filesystem on the partition",
				Action: probeImage,
			},
			{
				Name:      "ls",
				Usage:     "list a directory",
				ArgsUsage: "PATH",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "csv",
						Usage: "emit the listing as CSV",
					},
				},
				Action: listDirectory,
			},
			{
				Name:      "tree",
				Usage:     "recursively list the whole volume",
				ArgsUsage: " ",
				Action:    listTree,
			},
			{
				Name:      "cat",
				Usage:     "write a file's contents to stdout",
				ArgsUsage: "PATH",
				Action:    catFile,
			},
			{
				Name:      "dump",
				Usage:     "hex-dump a file's contents",
				ArgsUsage: "PATH",
				Action:    dumpFile,
			},
			{
				Name:      "get",
				Usage:     "copy a file out of the image",
				ArgsUsage: "PATH HOSTPATH",
				Action:    getFile,
			},
			{
				Name:      "put",
				Usage:     "copy a host file into the image",
				ArgsUsage: "HOSTPATH PATH",
				Action:    putFile,
			},
			{
				Name:      "mkdir",
				Usage:     "create a directory",
				ArgsUsage: "PATH",
				Action:    makeDirectory,
			},
			{
				Name:      "rm",
				Usage:     "remove a file",
				ArgsUsage: "PATH",
				Action:    removeFile,
			},
			{
				Name:      "rmdir",
				Usage:     "remove an empty directory",
				ArgsUsage: "PATH",
				Action:    removeDirectory,
			},
			{
				Name:   "check",
				Usage:  "run a consistency check of the volume",
				Action: checkImage,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %s", err)
	}
}

func openImage(c *cli.Context, readOnly bool) (*disk.Disk, filesystem.FileSystem, error) {
	d, err := dito.OpenWithMode(c.String("image"), readOnly)
	if err != nil {
		return nil, nil, err
	}
	fs, err := d.Mount(c.Int("part"), filesystem.TypeFat)
	if err != nil {
		_ = d.Close()
		return nil, nil, err
	}
	return d, fs, nil
}

func closeImage(d *disk.Disk, fs filesystem.FileSystem) error {
	err := fs.Close()
	if cerr := d.Close(); err == nil {
		err = cerr
	}
	return err
}

func formatImage(c *cli.Context) error {
	var (
		d   *disk.Disk
		err error
	)
	if size := c.Int64("size"); size > 0 {
		d, err = dito.Create(c.String("image"), size)
	} else {
		d, err = dito.Open(c.String("image"))
	}
	if err != nil {
		return err
	}
	fs, err := d.CreateFilesystem(c.Int("part"), filesystem.TypeFat)
	if err != nil {
		_ = d.Close()
		return err
	}
	fmt.Println("formatted FAT12 volume")
	return closeImage(d, fs)
}

func showInfo(c *cli.Context) error {
	d, fs, err := openImage(c, true)
	if err != nil {
		return err
	}
	defer func() { _ = closeImage(d, fs) }()

	type geometer interface {
		Geometry() (clusterSize, numClusters, rootEntries uint32, err error)
		FreeClusters() (uint32, error)
	}
	g, ok := fs.(geometer)
	if !ok {
		return fmt.Errorf("filesystem %s does not expose geometry", fs.Type())
	}
	clusterSize, numClusters, rootEntries, err := g.Geometry()
	if err != nil {
		return err
	}
	free, err := g.FreeClusters()
	if err != nil {
		return err
	}
	fmt.Printf("filesystem:    %s\n", fs.Type())
	fmt.Printf("cluster size:  %d bytes\n", clusterSize)
	fmt.Printf("clusters:      %d\n", numClusters)
	fmt.Printf("free clusters: %d\n", free)
	fmt.Printf("root entries:  %d\n", rootEntries)
	return nil
}

func probeImage(c *cli.Context) error {
	d, err := dito.OpenWithMode(c.String("image"), true)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()
	drv, err := d.ProbeFilesystem(c.Int("part"))
	if err != nil {
		return err
	}
	fmt.Printf("%s (driver present: %t)\n", drv.Name, drv.Present)
	return nil
}

// listRow is one line of ls output; the csv tags drive the --csv rendering.
type listRow struct {
	Name     string `csv:"name"`
	Inode    uint32 `csv:"inode"`
	Size     uint32 `csv:"size"`
	Dir      bool   `csv:"dir"`
	Modified string `csv:"modified"`
}

func listDirectory(c *cli.Context) error {
	d, fs, err := openImage(c, true)
	if err != nil {
		return err
	}
	defer func() { _ = closeImage(d, fs) }()

	dir, err := filesystem.Lookup(fs, c.Args().First())
	if err != nil {
		return err
	}
	var rows []*listRow
	for index := 0; ; index++ {
		entry, err := fs.ReadDir(dir, index)
		if err != nil {
			if errors.Is(err, filesystem.ErrNotFound) {
				break
			}
			return err
		}
		st, err := fs.Fstat(entry.Inode)
		if err != nil {
			return err
		}
		rows = append(rows, &listRow{
			Name:     entry.Name,
			Inode:    uint32(entry.Inode),
			Size:     st.Size,
			Dir:      st.IsDir(),
			Modified: st.Mtime.Format("2006-01-02 15:04:05"),
		})
	}

	if c.Bool("csv") {
		out, err := gocsv.MarshalString(&rows)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	}
	for _, row := range rows {
		kind := " "
		if row.Dir {
			kind = "d"
		}
		fmt.Printf("%s %8d  %s  %s\n", kind, row.Size, row.Modified, row.Name)
	}
	return nil
}

func listTree(c *cli.Context) error {
	d, fs, err := openImage(c, true)
	if err != nil {
		return err
	}
	defer func() { _ = closeImage(d, fs) }()

	return iofs.WalkDir(converter.FS(fs), ".", func(walkPath string, entry iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		fmt.Println(walkPath)
		return nil
	})
}

func readAll(fs filesystem.FileSystem, pathName string) ([]byte, error) {
	ino, err := filesystem.Lookup(fs, pathName)
	if err != nil {
		return nil, err
	}
	st, err := fs.Fstat(ino)
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%s is a directory", pathName)
	}
	data := make([]byte, st.Size)
	if _, err := io.ReadFull(filesystem.NewFile(fs, ino), data); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return data, nil
}

func catFile(c *cli.Context) error {
	d, fs, err := openImage(c, true)
	if err != nil {
		return err
	}
	defer func() { _ = closeImage(d, fs) }()

	data, err := readAll(fs, c.Args().First())
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func dumpFile(c *cli.Context) error {
	d, fs, err := openImage(c, true)
	if err != nil {
		return err
	}
	defer func() { _ = closeImage(d, fs) }()

	data, err := readAll(fs, c.Args().First())
	if err != nil {
		return err
	}
	fmt.Print(util.DumpByteSlice(data, 16))
	return nil
}

func getFile(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return errors.New("get requires PATH and HOSTPATH")
	}
	d, fs, err := openImage(c, true)
	if err != nil {
		return err
	}
	defer func() { _ = closeImage(d, fs) }()

	data, err := readAll(fs, c.Args().Get(0))
	if err != nil {
		return err
	}
	return os.WriteFile(c.Args().Get(1), data, 0o644)
}

func putFile(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return errors.New("put requires HOSTPATH and PATH")
	}
	hostPath := c.Args().Get(0)
	imagePath := c.Args().Get(1)

	data, err := os.ReadFile(hostPath)
	if err != nil {
		return err
	}
	info, err := os.Stat(hostPath)
	if err != nil {
		return err
	}
	st := filesystem.FileStat{
		Size:  uint32(len(data)),
		Mode:  0o644,
		Atime: info.ModTime(),
		Ctime: info.ModTime(),
		Mtime: info.ModTime(),
	}
	// carry the host access and birth times when the platform exposes them
	spec := times.Get(info)
	st.Atime = spec.AccessTime()
	if spec.HasBirthTime() {
		st.Ctime = spec.BirthTime()
	}

	d, fs, err := openImage(c, false)
	if err != nil {
		return err
	}
	defer func() { _ = closeImage(d, fs) }()

	parent, name := path.Split(imagePath)
	if name == "" {
		return fmt.Errorf("destination %s has no file name", imagePath)
	}
	dir, err := filesystem.Lookup(fs, parent)
	if err != nil {
		return err
	}
	ino, err := fs.Touch(st)
	if err != nil {
		return err
	}
	if err := fs.Link(ino, dir, name); err != nil {
		return err
	}
	if _, err := fs.Write(ino, data, 0); err != nil {
		return err
	}
	return nil
}

func makeDirectory(c *cli.Context) error {
	d, fs, err := openImage(c, false)
	if err != nil {
		return err
	}
	defer func() { _ = closeImage(d, fs) }()

	parent, name := path.Split(path.Clean(c.Args().First()))
	if name == "" {
		return errors.New("mkdir requires a directory name")
	}
	dir, err := filesystem.Lookup(fs, parent)
	if err != nil {
		return err
	}
	return fs.Mkdir(dir, name)
}

func removeEntry(c *cli.Context, wantDir bool) error {
	d, fs, err := openImage(c, false)
	if err != nil {
		return err
	}
	defer func() { _ = closeImage(d, fs) }()

	parent, name := path.Split(path.Clean(c.Args().First()))
	if name == "" {
		return errors.New("a file or directory name is required")
	}
	dir, err := filesystem.Lookup(fs, parent)
	if err != nil {
		return err
	}
	index, _, err := filesystem.Find(fs, dir, name)
	if err != nil {
		return err
	}
	if wantDir {
		return fs.Rmdir(dir, index)
	}
	return fs.Unlink(dir, index)
}

func removeFile(c *cli.Context) error {
	return removeEntry(c, false)
}

func removeDirectory(c *cli.Context) error {
	return removeEntry(c, true)
}

func checkImage(c *cli.Context) error {
	d, fs, err := openImage(c, true)
	if err != nil {
		return err
	}
	defer func() { _ = closeImage(d, fs) }()

	if err := fs.Check(); err != nil {
		return err
	}
	fmt.Println("volume is consistent")
	return nil
}
