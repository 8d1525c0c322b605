/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/jung-kurt/gofpdf"

	"shadowcaster/internal/version"
)

// PDFOptions controls proof sheet layout. Units are points (pt).
type PDFOptions struct {
	PageWidth  float64 // default A4 595
	PageHeight float64 // default A4 842
	Margin     float64 // default 36
	Columns    int     // default 3
}

func (o PDFOptions) withDefaults() PDFOptions {
	if o.PageWidth <= 0 {
		o.PageWidth = 595
	}
	if o.PageHeight <= 0 {
		o.PageHeight = 842
	}
	if o.Margin <= 0 {
		o.Margin = 36
	}
	if o.Columns <= 0 {
		o.Columns = 3
	}
	return o
}

// ProofSheetPDF writes a titled PDF with one captioned cell per image, flowing onto as many
// pages as needed. Images keep their aspect ratio and their alpha channel.
func ProofSheetPDF(path, title string, images []image.Image, labels []string, opt PDFOptions) error {
	if len(images) == 0 {
		return fmt.Errorf("proof sheet: no images")
	}
	opt = opt.withDefaults()

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: opt.PageWidth, Ht: opt.PageHeight},
	})
	pdf.SetTitle(title, true)
	pdf.SetCreator(version.String(), true)
	pdf.SetAutoPageBreak(false, 0)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	const titleH, captionH, gap = 28.0, 14.0, 10.0
	cellW := (opt.PageWidth - 2*opt.Margin - float64(opt.Columns-1)*gap) / float64(opt.Columns)
	cellH := cellW + captionH
	rowsPerPage := int((opt.PageHeight - 2*opt.Margin - titleH + gap) / (cellH + gap))
	if rowsPerPage < 1 {
		rowsPerPage = 1
	}
	perPage := rowsPerPage * opt.Columns

	for i, img := range images {
		if img == nil {
			return fmt.Errorf("proof sheet: image %d is nil", i)
		}
		slot := i % perPage
		if slot == 0 {
			pdf.AddPage()
			pdf.SetFont("Helvetica", "B", 14)
			pdf.SetXY(opt.Margin, opt.Margin)
			pdf.CellFormat(opt.PageWidth-2*opt.Margin, titleH-8, tr(title), "", 0, "L", false, 0, "")
		}
		col, row := slot%opt.Columns, slot/opt.Columns
		x := opt.Margin + float64(col)*(cellW+gap)
		y := opt.Margin + titleH + float64(row)*(cellH+gap)

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return fmt.Errorf("encode image %d: %w", i, err)
		}
		name := fmt.Sprintf("img%d", i)
		pdf.RegisterImageOptionsReader(name, gofpdf.ImageOptions{ImageType: "PNG"}, &buf)
		if err := pdf.Error(); err != nil {
			return fmt.Errorf("register image %d: %w", i, err)
		}
		b := img.Bounds()
		w, h := cellW, cellW*float64(b.Dy())/float64(b.Dx())
		if h > cellW {
			w, h = cellW*float64(b.Dx())/float64(b.Dy()), cellW
		}
		pdf.SetDrawColor(180, 180, 180)
		pdf.SetLineWidth(0.5)
		pdf.Rect(x, y, cellW, cellW, "D")
		pdf.ImageOptions(name, x+(cellW-w)/2, y+(cellW-h)/2, w, h, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")

		if i < len(labels) {
			pdf.SetFont("Helvetica", "", 9)
			pdf.SetXY(x, y+cellW+2)
			pdf.CellFormat(cellW, captionH-2, tr(labels[i]), "", 0, "C", false, 0, "")
		}
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("build pdf: %w", err)
	}
	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return writeAtomic(path, out.Bytes())
}
