package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	tempDirFlag := &cli.StringFlag{
		Name:    "temp-dir",
		Usage:   "directory for archives unpacked while they're in use",
		EnvVars: []string{"BETADISK_TEMP_DIR"},
	}

	app := cli.App{
		Name:  "betadisk",
		Usage: "Inspect and convert TR-DOS disk images",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log debug messages to stderr",
				EnvVars: []string{"BETADISK_VERBOSE"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "ls",
				Usage:     "List the files on an image or in an archive",
				Action:    listFiles,
				ArgsUsage: "IMAGE",
				Flags:     []cli.Flag{tempDirFlag},
			},
			{
				Name:      "info",
				Usage:     "Show an image's geometry and disk information",
				Action:    showInfo,
				ArgsUsage: "IMAGE",
				Flags:     []cli.Flag{tempDirFlag},
			},
			{
				Name:      "convert",
				Usage:     "Unpack an SCL archive into a raw TRD image",
				Action:    convertArchive,
				ArgsUsage: "ARCHIVE OUTPUT",
			},
			{
				Name:      "format",
				Usage:     "Create an empty image",
				Action:    formatImage,
				ArgsUsage: "OUTPUT",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "type",
						Usage: "disk type: 80ds, 40ds, or 80ss",
						Value: "80ds",
					},
					&cli.StringFlag{
						Name:  "label",
						Usage: "disk label, up to 8 characters",
					},
				},
			},
			{
				Name:      "dump",
				Usage:     "Read one sector through the emulated controller and hex dump it",
				Action:    dumpSector,
				ArgsUsage: "IMAGE",
				Flags: []cli.Flag{
					tempDirFlag,
					&cli.UintFlag{Name: "track", Usage: "physical track"},
					&cli.UintFlag{Name: "side", Usage: "0 or 1"},
					&cli.UintFlag{Name: "sector", Usage: "sector, counting from 1", Value: 1},
				},
			},
			{
				Name:      "pack",
				Usage:     "Compress a raw image with RLE8 and gzip",
				Action:    packImage,
				ArgsUsage: "INPUT OUTPUT",
			},
			{
				Name:      "unpack",
				Usage:     "Decompress an image packed with `pack`",
				Action:    unpackImage,
				ArgsUsage: "INPUT OUTPUT",
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}
