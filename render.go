package main

import (
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/sync/errgroup"
)

// validatePDF checks the uploaded file and returns its page count.
func validatePDF(pdfPath string) (int, error) {
	if err := api.ValidateFile(pdfPath, nil); err != nil {
		return 0, fmt.Errorf("invalid PDF: %w", err)
	}
	pageCount, err := api.PageCountFile(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("error counting PDF pages: %w", err)
	}
	if pageCount == 0 {
		return 0, fmt.Errorf("PDF has no pages")
	}
	return pageCount, nil
}

// renderPDFPages renders every page of the PDF into jobDir as JPEG files and
// returns the image paths in page order. Already-rendered pages are reused.
func renderPDFPages(pdfPath, jobDir string, limitPages int) ([]string, error) {
	if err := os.MkdirAll(jobDir, os.ModePerm); err != nil {
		return nil, err
	}

	// Check if images already exist
	var imagePaths []string
	for n := 0; ; n++ {
		if limitPages > 0 && n >= limitPages {
			break
		}
		imagePath := filepath.Join(jobDir, fmt.Sprintf("page%03d.jpg", n))
		if _, err := os.Stat(imagePath); os.IsNotExist(err) {
			break
		}
		imagePaths = append(imagePaths, imagePath)
	}

	// If images exist, return them
	if len(imagePaths) > 0 {
		return imagePaths, nil
	}

	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	totalPages := doc.NumPage()
	if limitPages > 0 && limitPages < totalPages {
		totalPages = limitPages
	}

	var mu sync.Mutex
	var g errgroup.Group

	for n := 0; n < totalPages; n++ {
		n := n // capture loop variable
		g.Go(func() error {
			mu.Lock()
			// I assume the libmupdf library is not thread-safe
			img, err := doc.Image(n)
			mu.Unlock()
			if err != nil {
				return err
			}

			imagePath := filepath.Join(jobDir, fmt.Sprintf("page%03d.jpg", n))
			f, err := os.Create(imagePath)
			if err != nil {
				return err
			}

			err = jpeg.Encode(f, img, &jpeg.Options{Quality: jpeg.DefaultQuality})
			if err != nil {
				f.Close()
				return err
			}
			f.Close()

			// Verify the JPEG file
			file, err := os.Open(imagePath)
			if err != nil {
				return err
			}
			defer file.Close()

			_, err = jpeg.Decode(file)
			if err != nil {
				return fmt.Errorf("invalid JPEG file: %s", imagePath)
			}

			mu.Lock()
			imagePaths = append(imagePaths, imagePath)
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// sort the image paths to ensure they are in order
	slices.Sort(imagePaths)

	return imagePaths, nil
}
