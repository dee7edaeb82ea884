package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dargueta/betadisk"
	"github.com/dargueta/betadisk/disks"
	"github.com/dargueta/betadisk/drivers/scl"
	"github.com/dargueta/betadisk/drivers/trd"
	"github.com/dargueta/betadisk/fdc"
	"github.com/dargueta/betadisk/utilities/compression"
	"github.com/urfave/cli/v2"
)

func newLogger(context *cli.Context) *slog.Logger {
	level := slog.LevelWarn
	if context.Bool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func requireArgs(context *cli.Context, count int) error {
	if context.NArg() != count {
		return cli.Exit(
			fmt.Sprintf("expected %d arguments, got %d; usage: %s %s",
				count, context.NArg(), context.Command.Name, context.Command.ArgsUsage),
			2,
		)
	}
	return nil
}

// openDisk opens a raw image, or unpacks an archive if the file name ends in
// ".scl". The returned image must be released with the returned function.
func openDisk(context *cli.Context, path string) (*trd.Image, func() error, error) {
	logger := newLogger(context)

	if strings.EqualFold(filepath.Ext(path), ".scl") {
		archive, err := scl.Open(path, scl.Options{TempDir: context.String("temp-dir"), Logger: logger})
		if err != nil {
			return nil, nil, err
		}
		return archive.Image, archive.Close, nil
	}

	image, err := trd.OpenFile(path, trd.Options{ReadOnly: true, Logger: logger})
	if err != nil {
		return nil, nil, err
	}
	return image, image.Close, nil
}

func listFiles(context *cli.Context) error {
	if err := requireArgs(context, 1); err != nil {
		return err
	}

	image, release, err := openDisk(context, context.Args().First())
	if err != nil {
		return err
	}
	defer release()

	return trd.ListFiles(os.Stdout, image)
}

func showInfo(context *cli.Context) error {
	if err := requireArgs(context, 1); err != nil {
		return err
	}

	image, release, err := openDisk(context, context.Args().First())
	if err != nil {
		return err
	}
	defer release()

	info, err := image.DiskInfo()
	if err != nil {
		return err
	}
	catalog, err := image.Catalog()
	if err != nil {
		return err
	}

	typeName := "unknown"
	if diskType, ok := disks.LookupDiskType(info.DiskType); ok {
		typeName = diskType.Name
	}

	fmt.Printf("Geometry:      %s\n", image.Geometry())
	fmt.Printf("Disk type:     %#02x (%s)\n", info.DiskType, typeName)
	fmt.Printf("Label:         %q\n", info.LabelString())
	fmt.Printf("Files:         %d declared, %d in catalog\n", info.FileCount, len(catalog))
	fmt.Printf("Deleted files: %d\n", info.DeletedFiles)
	fmt.Printf("Free sectors:  %d\n", info.FreeSectors)
	return nil
}

func convertArchive(context *cli.Context) error {
	if err := requireArgs(context, 2); err != nil {
		return err
	}

	source, err := os.Open(context.Args().Get(0))
	if err != nil {
		return err
	}
	defer source.Close()

	output, err := os.Create(context.Args().Get(1))
	if err != nil {
		return err
	}
	defer output.Close()

	descriptors, err := scl.Convert(
		bufio.NewReader(source), output, scl.Options{Logger: newLogger(context)})
	if err != nil {
		return err
	}

	for _, descriptor := range descriptors {
		fmt.Println(descriptor)
	}
	fmt.Printf("Converted %d files.\n", len(descriptors))
	return output.Sync()
}

func formatImage(context *cli.Context) error {
	if err := requireArgs(context, 1); err != nil {
		return err
	}

	diskType, err := disks.GetPredefinedDiskType(context.String("type"))
	if err != nil {
		return err
	}

	output, err := os.Create(context.Args().First())
	if err != nil {
		return err
	}
	defer output.Close()

	writer := bufio.NewWriter(output)
	err = trd.Format(writer, diskType, context.String("label"))
	if err != nil {
		return err
	}
	return writer.Flush()
}

// dumpSector reads a sector the way software on the emulated machine would:
// select the drive, seek, issue Read Sector, and drain the data register.
func dumpSector(context *cli.Context) error {
	if err := requireArgs(context, 1); err != nil {
		return err
	}

	image, release, err := openDisk(context, context.Args().First())
	if err != nil {
		return err
	}
	defer release()

	config := fdc.DefaultConfig()
	config.Logger = newLogger(context)
	controller := fdc.New(config)
	err = controller.Attach(0, image)
	if err != nil {
		return err
	}

	control := uint8(fdc.ControlHeadLoad)
	if context.Uint("side") != 0 {
		control |= fdc.ControlSide
	}
	controller.WritePort(fdc.PortControl, control)
	controller.WritePort(fdc.PortData, uint8(context.Uint("track")))
	controller.WritePort(fdc.PortStatus, 0x10)
	for controller.State() == fdc.Busy {
		controller.Tick(controller.DelayRemaining())
	}

	controller.WritePort(fdc.PortSector, uint8(context.Uint("sector")))
	controller.WritePort(fdc.PortStatus, 0x80)
	if controller.State() != fdc.TransferringRead {
		return betadisk.ErrIOFault.WithMessage(
			fmt.Sprintf("controller reported status %#02x", controller.ReadPort(fdc.PortStatus)))
	}

	sector := make([]byte, 0, betadisk.SectorSize)
	for controller.State() == fdc.TransferringRead {
		sector = append(sector, controller.ReadPort(fdc.PortData))
	}

	dumper := hex.Dumper(os.Stdout)
	_, err = dumper.Write(sector)
	if err != nil {
		return err
	}
	return dumper.Close()
}

func packImage(context *cli.Context) error {
	return transcode(context, compression.CompressImage)
}

func unpackImage(context *cli.Context) error {
	return transcode(context, compression.DecompressImage)
}

func transcode(context *cli.Context, process func(io.Reader, io.Writer) (int64, error)) error {
	if err := requireArgs(context, 2); err != nil {
		return err
	}

	source, err := os.Open(context.Args().Get(0))
	if err != nil {
		return err
	}
	defer source.Close()

	output, err := os.Create(context.Args().Get(1))
	if err != nil {
		return err
	}
	defer output.Close()

	n, err := process(source, output)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Processed %s, %d bytes.\n", context.Args().Get(0), n)
	return nil
}
