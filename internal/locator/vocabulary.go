package locator

// Default vocabularies. The back office ships in many locales; Thai is the
// primary non-English one for the default target.
var (
	ExportWords = []string{
		"export", "download", "export csv", "download csv",
		"ส่งออก", "ดาวน์โหลด",
		"exportar", "descargar", "baixar",
		"exporter", "télécharger",
		"exportieren", "herunterladen",
		"esporta", "scarica",
		"экспорт", "экспортировать", "скачать",
		"导出", "下载", "匯出", "下載",
		"エクスポート", "ダウンロード",
		"내보내기", "다운로드",
		"xuất", "tải xuống",
		"ekspor", "unduh",
		"dışa aktar", "indir",
	}

	OverflowWords = []string{
		"more", "more actions", "more options", "actions", "options",
		"เพิ่มเติม", "การดำเนินการ", "ตัวเลือก",
		"más", "mais", "plus", "mehr", "altro", "ещё", "еще", "更多", "その他", "더보기",
		"⋮", "⋯", "…", "...",
	}

	AnchorWords = []string{
		"import", "add item", "add", "search",
		"นำเข้า", "เพิ่มสินค้า", "เพิ่ม", "ค้นหา",
		"importar", "importer", "importieren", "импорт",
	}

	CSVWords = []string{"csv", "comma separated", "comma-separated values"}

	ExcelWords = []string{"excel", "xlsx", "xls", "spreadsheet", "สเปรดชีต"}

	ConfirmWords = []string{
		"export", "download", "ok", "confirm", "continue",
		"ส่งออก", "ดาวน์โหลด", "ตกลง", "ยืนยัน",
	}

	DismissWords = []string{
		"accept", "accept all", "i agree", "agree", "got it", "close", "dismiss",
		"ตกลง", "ยอมรับ", "ปิด", "รับทราบ",
	}
)
