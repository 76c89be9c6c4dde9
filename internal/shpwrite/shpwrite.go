// Package shpwrite writes a minimal ESRI shapefile (.shp/.shx/.dbf) for a
// single WGS84 polygon, with no GIS dependency: none of the corpus repos
// carry a shapefile-writing library, so this follows the same
// hand-rolled-binary-format approach the teacher uses for its own TIFF
// encoder (pkg/geotiff), applied to the shapefile spec instead.
package shpwrite

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/paulmach/orb"
)

const shapeTypePolygon = 5

// WriteSet writes the four component files (.shp, .shx, .dbf, .prj) for
// poly into the returned map keyed by file extension (without the dot),
// ready to be zipped together (spec §4.8 "zip the four/five component
// files together").
func WriteSet(poly orb.Polygon, prjWKT string) (map[string][]byte, error) {
	shp, shx, err := encodeShpShx(poly)
	if err != nil {
		return nil, err
	}
	dbf := encodeDBF()
	return map[string][]byte{
		"shp": shp,
		"shx": shx,
		"dbf": dbf,
		"prj": []byte(prjWKT),
	}, nil
}

func encodeShpShx(poly orb.Polygon) (shp, shx []byte, err error) {
	if len(poly) == 0 {
		return nil, nil, fmt.Errorf("shpwrite: empty polygon")
	}

	minX, minY, maxX, maxY := ringsBounds(poly)

	var parts []int32
	var points [][2]float64
	for _, ring := range poly {
		parts = append(parts, int32(len(points)))
		for _, p := range ring {
			points = append(points, [2]float64{p[0], p[1]})
		}
	}

	// Record content, little-endian per the shapefile spec's record body.
	var record bytes.Buffer
	binary.Write(&record, binary.LittleEndian, int32(shapeTypePolygon))
	writeLEDouble(&record, minX)
	writeLEDouble(&record, minY)
	writeLEDouble(&record, maxX)
	writeLEDouble(&record, maxY)
	binary.Write(&record, binary.LittleEndian, int32(len(parts)))
	binary.Write(&record, binary.LittleEndian, int32(len(points)))
	for _, p := range parts {
		binary.Write(&record, binary.LittleEndian, p)
	}
	for _, pt := range points {
		writeLEDouble(&record, pt[0])
		writeLEDouble(&record, pt[1])
	}

	contentWords := int32(record.Len() / 2)
	fileLenWords := int32(50 + (8+record.Len())/2) // header words + record header + content

	var shpBuf bytes.Buffer
	writeShapefileHeader(&shpBuf, fileLenWords, minX, minY, maxX, maxY)
	binary.Write(&shpBuf, binary.BigEndian, int32(1))   // record number
	binary.Write(&shpBuf, binary.BigEndian, contentWords)
	shpBuf.Write(record.Bytes())

	var shxBuf bytes.Buffer
	shxFileLenWords := int32(50 + 4)
	writeShapefileHeader(&shxBuf, shxFileLenWords, minX, minY, maxX, maxY)
	binary.Write(&shxBuf, binary.BigEndian, int32(50)) // offset of the one record, in words
	binary.Write(&shxBuf, binary.BigEndian, contentWords)

	return shpBuf.Bytes(), shxBuf.Bytes(), nil
}

func writeShapefileHeader(buf *bytes.Buffer, fileLenWords int32, minX, minY, maxX, maxY float64) {
	binary.Write(buf, binary.BigEndian, int32(9994)) // file code
	for i := 0; i < 5; i++ {
		binary.Write(buf, binary.BigEndian, int32(0)) // unused
	}
	binary.Write(buf, binary.BigEndian, fileLenWords)
	binary.Write(buf, binary.LittleEndian, int32(1000)) // version
	binary.Write(buf, binary.LittleEndian, int32(shapeTypePolygon))
	writeLEDouble(buf, minX)
	writeLEDouble(buf, minY)
	writeLEDouble(buf, maxX)
	writeLEDouble(buf, maxY)
	writeLEDouble(buf, 0) // zmin
	writeLEDouble(buf, 0) // zmax
	writeLEDouble(buf, 0) // mmin
	writeLEDouble(buf, 0) // mmax
}

// encodeDBF writes a minimal dBase III table with one text field ("ID")
// and a single record, enough to satisfy shapefile readers that require
// a non-empty attribute table.
func encodeDBF() []byte {
	const fieldName = "ID"
	const fieldLen = 10
	recordValue := "1"

	var fieldDescriptor bytes.Buffer
	var name [11]byte
	copy(name[:], fieldName)
	fieldDescriptor.Write(name[:])
	fieldDescriptor.WriteByte('C') // character field
	fieldDescriptor.Write(make([]byte, 4))
	fieldDescriptor.WriteByte(fieldLen)
	fieldDescriptor.WriteByte(0) // decimal count
	fieldDescriptor.Write(make([]byte, 14))

	headerLen := 32 + fieldDescriptor.Len() + 1
	recordLen := 1 + fieldLen
	numRecords := int32(1)

	var buf bytes.Buffer
	buf.WriteByte(0x03) // dBase III, no memo
	buf.WriteByte(124)  // YY since 1900 (placeholder date)
	buf.WriteByte(1)
	buf.WriteByte(1)
	binary.Write(&buf, binary.LittleEndian, numRecords)
	binary.Write(&buf, binary.LittleEndian, uint16(headerLen))
	binary.Write(&buf, binary.LittleEndian, uint16(recordLen))
	buf.Write(make([]byte, 20)) // reserved
	buf.Write(fieldDescriptor.Bytes())
	buf.WriteByte(0x0D) // header terminator

	buf.WriteByte(' ') // not-deleted flag
	value := make([]byte, fieldLen)
	copy(value, recordValue)
	for i := len(recordValue); i < fieldLen; i++ {
		value[i] = ' '
	}
	buf.Write(value)
	buf.WriteByte(0x1A) // end-of-file marker

	return buf.Bytes()
}

func ringsBounds(poly orb.Polygon) (minX, minY, maxX, maxY float64) {
	first := true
	for _, ring := range poly {
		for _, p := range ring {
			if first {
				minX, minY, maxX, maxY = p[0], p[1], p[0], p[1]
				first = false
				continue
			}
			if p[0] < minX {
				minX = p[0]
			}
			if p[0] > maxX {
				maxX = p[0]
			}
			if p[1] < minY {
				minY = p[1]
			}
			if p[1] > maxY {
				maxY = p[1]
			}
		}
	}
	return
}

func writeLEDouble(buf *bytes.Buffer, v float64) {
	binary.Write(buf, binary.LittleEndian, v)
}
