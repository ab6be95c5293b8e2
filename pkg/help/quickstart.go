// Package help holds the quickstart text printed by `metawarc quickstart`.
package help

const QuickstartYAML = `# metawarc Quick Start

commands:
  index: |
    metawarc index crawl.warc.gz
    metawarc index "crawls/**/*.warc.gz" --tables records,ooxmldocs,pdfs,images

  extract: |
    metawarc extract --table pdfs

  stats: |
    metawarc stats --mode mime
    metawarc stats --mode ext --output stats.xlsx

  list: |
    metawarc list --table records --mimes text/html --limit 20
    metawarc list --table pdfs --filter "ext=pdf and url~%reports%"
    metawarc list --table images --output images.xlsx

  dump: |
    metawarc dump --exts pdf,docx --output out/
    metawarc dump --filter "status_code=200 and length>100000" --limit 50

  fetch: |
    metawarc fetch "<urn:uuid:...>" --output page.html
    metawarc fetch https://example.com/report.pdf

  catalog: |
    metawarc files
    metawarc tables --table records
    metawarc verify
    metawarc runs
    metawarc run 5

  export: |
    metawarc export headers crawl.warc.gz --output headers.jsonl
    metawarc export content crawl.warc.gz --content-types text/html

  serve: |
    metawarc serve --addr 127.0.0.1:8089
    curl 'http://127.0.0.1:8089/api/records?mime=application/pdf&limit=10'

tables:
  records: "One row per WARC record (always built by index)"
  headers: "HTTP response headers, one row per header"
  links: "Anchors found in HTML responses"
  ooxmldocs: "docx, xlsx, pptx core properties"
  oledocs: "Legacy doc, xls, ppt summary properties"
  pdfs: "PDF document info and page count"
  images: "Image format and dimensions"

filters:
  syntax: "column<op>value joined by 'and' / 'or'"
  operators: ["=", "!=", ">", ">=", "<", "<=", "~ (SQL LIKE, % matches any run)"]
  nulls: "column=null, column!=null"

outputs:
  - "--output file.csv | file.xlsx | file.jsonl picks the format by extension"
  - "Without --output a table is printed to stdout"

environment:
  - "METAWARC_CATALOG, METAWARC_DATA_DIR, METAWARC_LOG_LEVEL and friends mirror the global flags"
  - "A .env file in the working directory is loaded first"

exit_codes:
  0: "success"
  1: "failure (some files or records failed)"
  2: "usage error"
  3: "missing prerequisite (no catalog or file not indexed)"
`
