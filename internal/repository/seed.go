package repository

import "github.com/mmeshcher/pastry-storefront/internal/model"

// SeedImageBaseURL — адрес картинок встроенного каталога.
const SeedImageBaseURL = "http://192.168.1.123:3000/images/"

type seedItem struct {
	id, name    string
	price       float64
	image, desc string
	promo       bool
	rate        int
	category    string
}

var seedItems = []seedItem{
	{"1", "Cupcake Vanille", 5, "cupvanille.jpg", "Cupcake moelleux parfumé à la vanille avec une crème douce et légère.", false, 0, "Cupcakes"},
	{"2", "Cupcake Chocolat", 5.5, "capchocolat.jpg", "Cupcake fondant au chocolat intense, idéal pour les amateurs de cacao.", false, 0, "Cupcakes"},
	{"3", "Cupcake Citron", 5.5, "caplemon.jpg", "Cupcake frais et légèrement acidulé au goût naturel de citron.", false, 0, "Cupcakes"},
	{"4", "Cupcake Noisette Chocolat", 6, "capnoisettechocolat.jpg", "Cupcake gourmand mêlant chocolat fondant et éclats de noisette.", true, 10, "Cupcakes"},
	{"5", "Cupcake Noix Cacao", 6, "capnoixcaco.jpg", "Cupcake riche en saveurs avec noix croquantes et cacao intense.", false, 0, "Cupcakes"},
	{"6", "Cupcake Spéculoos", 6.5, "capspeculos.jpg", "Cupcake onctueux au spéculoos, au goût épicé et caramelisé.", true, 15, "Cupcakes"},
	{"7", "Gâteau Chocolat", 18, "gateauchocolat.jpg", "Gâteau fondant au chocolat, riche et généreux.", false, 0, "Gâteaux"},
	{"8", "Gâteau Chocolat Blanc", 19, "gateauchocolatblanc.jpg", "Gâteau doux et crémeux au chocolat blanc.", false, 0, "Gâteaux"},
	{"9", "Gâteau Caramel", 20, "gateaucaramel.jpg", "Gâteau nappé de caramel fondant au goût délicieusement sucré.", true, 20, "Gâteaux"},
	{"10", "Gâteau Vanille", 17, "gateauvanille.jpg", "Gâteau léger et parfumé à la vanille naturelle.", false, 0, "Gâteaux"},
	{"11", "Gâteau Citron", 18, "gateaulemon.jpg", "Gâteau moelleux au citron, frais et légèrement acidulé.", false, 0, "Gâteaux"},
	{"12", "Gâteau Noisette", 19, "gateaunoisette.jpg", "Gâteau savoureux à la noisette, à la texture fondante.", false, 0, "Gâteaux"},
	{"13", "Gâteau Fruits", 21, "gateauufruit.jpg", "Gâteau garni de fruits frais et colorés de saison.", false, 0, "Gâteaux"},
	{"14", "Gâteau Framboise", 22, "gateaurasbery.jpg", "Gâteau fruité à la framboise, doux et légèrement acidulé.", true, 10, "Gâteaux"},
	{"15", "Gâteau Red Velvet", 23, "gateuredvelvet.jpg", "Gâteau red velvet moelleux avec une crème onctueuse.", false, 0, "Gâteaux"},
	{"16", "Croissant Nature", 2.5, "croissantnaature.jpg", "Croissant pur beurre, croustillant à l'extérieur et fondant à l'intérieur.", false, 0, "Viennoiseries"},
	{"17", "Croissant Chocolat", 3, "croissantchocolat.jpg", "Croissant fourré au chocolat fondant.", false, 0, "Viennoiseries"},
	{"18", "Croissant Crème Amande", 3.5, "croissantcremeamande.jpg", "Croissant garni d'une délicieuse crème d'amande.", false, 0, "Viennoiseries"},
	{"19", "Pain au Chocolat", 3, "vinoiseriepainchocolat.jpg", "Pain au chocolat croustillant avec un cœur fondant.", false, 0, "Viennoiseries"},
	{"20", "Brioche Nature", 3.5, "vinoiseriebriochenature.jpg", "Brioche moelleuse et légèrement sucrée.", false, 0, "Viennoiseries"},
	{"21", "Chausson aux Pommes", 3.5, "vinoiseriechaussonpomme.jpg", "Chausson croustillant garni de compote de pommes.", false, 0, "Viennoiseries"},
	{"22", "Tarte Citron Meringuée", 7.5, "tarteaucitronmeringu.jpg", "Tarte au citron acidulée surmontée d'une meringue légère.", true, 10, "Tartes"},
	{"23", "Tarte Fraises", 8, "tartefraises.jpg", "Tarte gourmande aux fraises fraîches.", false, 0, "Tartes"},
	{"24", "Tarte aux Fruits", 8.5, "tartefruit.jpg", "Tarte colorée garnie de fruits de saison.", false, 0, "Tartes"},
	{"25", "Macaron Chocolat", 3, "maccaronchocolat.jpg", "Macaron croquant au chocolat avec un cœur fondant.", false, 0, "Macarons"},
	{"26", "Macaron Pistache", 3, "maccaronpistache.jpg", "Macaron délicat à la pistache au goût raffiné.", false, 0, "Macarons"},
	{"27", "Macaron Framboise", 3, "maccaronrasbery.jpg", "Macaron fruité à la framboise, doux et parfumé.", false, 0, "Macarons"},
}

// SeedProducts возвращает встроенный каталог, которым заполняется пустая локальная копия.
func SeedProducts() []model.Product {
	products := make([]model.Product, 0, len(seedItems))
	for _, it := range seedItems {
		products = append(products, model.Product{
			ID:           it.id,
			Name:         it.name,
			Price:        it.price,
			ImageURL:     SeedImageBaseURL + it.image,
			Available:    true,
			Description:  it.desc,
			InPromotion:  it.promo,
			DiscountRate: it.rate,
			Category:     it.category,
		})
	}
	return products
}
