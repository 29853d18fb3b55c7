// Package gui is the graphical shell around the unlocker: two path
// fields, a browse button for each and a single Unlock action.
package gui

import (
	"image/color"
	"path/filepath"

	"github.com/Picocrypt/dialog"
	"github.com/Picocrypt/giu"

	"kfnunlocker/unlocker"
)

var white = color.RGBA{0xff, 0xff, 0xff, 0xff}
var red = color.RGBA{0xff, 0x00, 0x00, 0xff}
var green = color.RGBA{0x00, 0xff, 0x00, 0xff}

var (
	inputFile  string
	outputFile string

	status      = "Ready"
	statusColor = white
)

func onBrowseInput() {
	file, err := dialog.File().
		Title("Choose a locked KFN file").
		Filter("KFN files", "kfn").
		Load()
	if file == "" || err != nil {
		return
	}
	inputFile = file
	outputFile = unlocker.OutputPath(file)
	status = "Ready"
	statusColor = white
	giu.Update()
}

func onBrowseOutput() {
	f := dialog.File().
		Title("Choose where to save the unlocked file").
		Filter("KFN files", "kfn")
	if inputFile != "" {
		f.SetStartDir(filepath.Dir(inputFile))
		f.SetInitFilename(filepath.Base(unlocker.OutputPath(inputFile)))
	}
	file, err := f.Save()
	if file == "" || err != nil {
		return
	}
	outputFile = file
	giu.Update()
}

func onClickUnlock() {
	if inputFile == "" || outputFile == "" {
		status = "Please select input and output files."
		statusColor = red
		giu.Update()
		return
	}

	// A single synchronous unlock per click; the files are small
	// enough that blocking the frame is fine.
	if err := unlocker.UnlockFile(inputFile, outputFile); err != nil {
		status = "Error: " + err.Error()
		statusColor = red
	} else {
		status = "File unlocked successfully!"
		statusColor = green
	}
	giu.Update()
}

func draw() {
	giu.SingleWindow().Layout(
		giu.Label("Input file:"),
		giu.Row(
			giu.InputText(&inputFile).Size(giu.Auto-70),
			giu.Button("Browse").Size(64, 0).OnClick(onBrowseInput),
		),

		giu.Label("Output file:"),
		giu.Row(
			giu.InputText(&outputFile).Size(giu.Auto-70),
			giu.Button("Browse").Size(64, 0).OnClick(onBrowseOutput),
		),

		giu.Dummy(0, 8),
		giu.Button("Unlock File").Size(120, 0).OnClick(onClickUnlock),

		giu.Separator(),
		giu.Style().SetColor(giu.StyleColorText, statusColor).To(
			giu.Label(status).Wrapped(true),
		),
	)
}

// Run opens the window and blocks until it is closed.
func Run() {
	window := giu.NewMasterWindow("KFN File Unlocker", 420, 230, giu.MasterWindowFlagsNotResizable)
	dialog.Init()
	window.Run(draw)
}
